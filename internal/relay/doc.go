// Package relay implements the channel to the central relay.
//
// The relay channel:
//   - Opens a WebSocket connection carrying videoProgress/videoState/room
//     query parameters
//   - Falls back to HTTP long-polling when the WebSocket dial fails
//   - Decodes relay events into a typed event stream
//   - Classifies every disconnect as local, server or transport so the
//     session layer can decide whether to retry
//
// A Channel is single-use: Open starts the dial in the background and the
// outcome arrives on Events(). Exactly one terminal event (ConnectFailed or
// Disconnected) is delivered, after which the event stream closes.
package relay
