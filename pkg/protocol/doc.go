// Package protocol defines the wire types exchanged between an agent and a
// capability provider, and the codec that turns bytes into messages.
//
// # Envelopes
//
// Every frame is a JSON-RPC 2.0 envelope decoded into one of three shapes:
//
//   - *Request: has an id and a method; the peer must answer with a Response
//   - *Response: has the id of an outstanding Request and exactly one of result or error
//   - *Notification: has a method and no id; no answer is expected
//
// Decode rejects anything else with a ProtocolError from pkg/errors. Encode
// always writes jsonrpc "2.0" and refuses envelopes that would not decode.
//
// Request ids and progress tokens share the ID type, which keeps whether the
// value was a string or an integer so that echoes are byte-identical.
//
// # Example Messages
//
// Initialize request:
//
//	{
//	    "jsonrpc": "2.0",
//	    "id": "req_1",
//	    "method": "initialize",
//	    "params": {
//	        "protocolVersion": "2025-03-26",
//	        "capabilities": {"sampling": {}},
//	        "clientInfo": {"name": "mcp-agent", "version": "0.1.0"}
//	    }
//	}
//
// Tool call with a progress token:
//
//	{
//	    "jsonrpc": "2.0",
//	    "id": "req_7",
//	    "method": "tools/call",
//	    "params": {
//	        "name": "add",
//	        "arguments": {"a": 1, "b": 0.00001},
//	        "_meta": {"progressToken": "7c1e..."}
//	    }
//	}
package protocol
