/*

Package ota implements the wire protocol and session data model of a
multicast firmware-over-the-air delivery system: fragment encoding,
CRC-16 framing, and the durable session-parameters record shared by the
router and node roles in package engine.

*/
package ota
