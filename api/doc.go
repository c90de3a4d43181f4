// Package api provides the DXtrade REST client.
//
// Every request runs through one pipeline: idempotency-cache lookup,
// rate-limit gate, authentication, send with retry/backoff, and error
// classification. Typed endpoint methods (accounts, instruments, orders,
// positions) are thin wrappers over that pipeline.
//
// Base URLs are broker-hosted, e.g. https://dxtrade.example.com/dxsca-web.
package api
