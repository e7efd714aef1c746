// Package protocol defines the wire types spoken on the agent's three
// message boundaries: the content collaborator stream, the popup
// collaborator stream, and the relay channel.
//
// Each inbound stream is a sealed variant set behind a single interface
// (ContentMessage, PopupMessage, RelayEvent) produced only by the
// corresponding Decode* function, so dispatch sites can switch
// exhaustively. Unknown type tags decode to ErrUnknownType.
//
// Conventions:
//   - JSON field names: snake_case
//   - Playback progress: seconds as float64; rounded to an integer only
//     in relay open query parameters
//   - Type tags: kebab-case strings in a "type" field
package protocol
