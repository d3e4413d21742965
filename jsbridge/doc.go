// Package jsbridge hosts a JavaScript script in a goja runtime and connects
// it to the server through the handler and callback contract in package api.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The script sees a global "server" object:
//
//	server.onRequest(function (req) { return "hello " + req.path })
//	server.websocket({
//	    open:    function (conn) { server.join(conn.id, "lobby") },
//	    message: function (conn, msg) { server.broadcastRoom("lobby", msg, conn.id) },
//	    close:   function (conn) {},
//	})
//
// plus send, broadcast, join, leave, broadcastRoom and rooms, and a console
// with log, warn and error. A goja runtime is single threaded, so every entry
// into the script is serialized by the Bridge.
package jsbridge
