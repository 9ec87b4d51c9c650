package core

import "context"

type contextKey string

const ctxKeyClient contextKey = "transfer_client"

// Client identifies who started a transfer; it is recorded in transfer logs.
type Client struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ContextWithClient attaches client details to ctx.
func ContextWithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}

// logAttrs renders c as flat log attributes.
func (c Client) logAttrs() []any {
	return []any{"ip", c.IP, "user_agent", c.UserAgent}
}

// ClientFromContext returns the client stored by ContextWithClient.
func ClientFromContext(ctx context.Context) Client {
	if c, ok := ctx.Value(ctxKeyClient).(Client); ok {
		return c
	}
	return Client{}
}
