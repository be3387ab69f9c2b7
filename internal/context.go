package internal

import "context"

type ctxKey string

const ContextMerchantKey ctxKey = "merchantID"

// MerchantIDFromContext returns the authenticated merchant, or "" outside MerchantAuth.
func MerchantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if merchantID, ok := ctx.Value(ContextMerchantKey).(string); ok {
		return merchantID
	}
	return ""
}

func ContextWithMerchantID(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, ContextMerchantKey, merchantID)
}
