// Package model defines the shared data types for the DXtrade SDK.
//
// Conventions:
//   - Money and volume fields: decimal.Decimal, never float64
//   - Timestamps: time.Time in UTC
//   - IDs: opaque strings assigned by the platform, uuid strings for
//     client-generated identifiers
package model
