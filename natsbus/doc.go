// Package natsbus implements the stream.Bus interface over a NATS
// connection.
//
// Events travel as JSON on subjects derived from their type
// (nexus.events.<type>). Publish uses request/reply so the caller gets the
// bus acknowledgement; Subscribe fans any number of type filters into a
// single ordered message channel.
//
// The server address is resolved from NEXUS_NATS_URL, then NATS_URL, then a
// fixed default, matching the deployment convention of the wider platform.
package natsbus
