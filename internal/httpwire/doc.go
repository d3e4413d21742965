// Package httpwire
// Author: momentics <momentics@gmail.com>
//
// Minimal HTTP/1.1 request engine used by the acceptor: parsing a buffered
// request, incremental reads with a growing buffer and a hard ceiling, and
// response serialization. One in-flight request per connection.
package httpwire
