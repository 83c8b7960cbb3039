package capture

import "context"

// Sink is the write side of C1 as seen by C3. Implementations must never
// block the client path on failure: a write error is logged and dropped,
// per §7's storage-write-failure rule.
type Sink interface {
	Write(ctx context.Context, rec Record)

	// BackfillServerInfo updates the serverVersion/serverTitle columns of
	// the single matching `initialize` request row, once the paired
	// response's result.serverInfo becomes known (§4.5 step 7).
	BackfillServerInfo(ctx context.Context, serverName, sessionID string, reqID []byte, serverVersion, serverTitle string)
}
