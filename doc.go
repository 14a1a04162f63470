// Package kimiproxy is an OpenAI compatible front end for the Kimi chat
// backend. The server lives in cmd; this package only carries documentation.
//
// # Backend API
//
// Chat goes through a single Connect procedure:
//
//   - POST {base}/apiv2/kimi.gateway.chat.v1.ChatService/Chat
//     Server streaming, JSON codec, Content-Type application/connect+json
//
// Every message on the wire is an envelope: one flag byte and a big endian
// uint32 length, followed by the JSON payload. Flag 0x02 marks the final
// envelope, which may carry {"error":{"code":...,"message":...}}.
// Compressed envelopes (flag 0x01) are rejected.
//
// # Authentication
//
// Callers send a Kimi access token as "Authorization: Bearer <token>" or in
// the x-goog-api-key header. Access tokens are JWTs whose payload carries
// app_id "kimi" and typ "access". Refresh tokens are refused with 401 before
// any backend call is made.
//
// # Required Headers
//
// The backend expects:
//
//   - Authorization: Bearer {ACCESS_TOKEN}
//   - Content-Type: application/connect+json
//   - Connect-Protocol-Version: 1
//   - X-Msh-Device-Id: device_id claim of the token
//   - X-Msh-Session-Id: ssid claim of the token
//   - X-Traffic-Id: sub claim of the token
//
// The last three are omitted when the claim is absent.
//
// # Request Format
//
// The backend request body is:
//
//	{
//	  "scenario": "SCENARIO_K2",
//	  "message": {"role": "user", "blocks": [{"text": {"content": "Hi"}}]},
//	  "options": {"thinking": false}
//	}
//
// Only the text of the last OpenAI message is sent.
//
// # Model Names
//
// The scenario is picked from the OpenAI model name by the first matching
// substring: "k2.5", "search", "research", "k1". Anything else is K2.
// A name containing "thinking" turns on thinking mode.
//
// # Usage Accounting
//
// Usage fields in responses count characters of the prompt and the reply,
// not tokenizer tokens.
package kimiproxy
