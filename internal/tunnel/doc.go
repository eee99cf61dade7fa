// Package tunnel exposes a local port on the public internet through an
// outbound quick tunnel.
//
// The Provider interface hides the concrete tool. The cloudflared
// implementation launches the binary in its own process group, watches both
// output streams for a public hostname, and hands back a Handle that kills the
// whole group on Terminate. When the tool reports an established connection
// without ever printing a hostname, the provider falls back to a URL derived
// from the tunnel name and flags the result as inferred.
package tunnel
