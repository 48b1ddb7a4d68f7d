// Package analytics is the consumer side of the credential cache: it validates
// usage queries, calls the downstream analytics service with a cached bearer
// token and exposes the result over HTTP.
//
// A downstream 401 invalidates the CredentialCache (via httpclient.OAuth2Transport)
// and Client.Query retries exactly once with a freshly exchanged token. A second
// 401 surfaces as oauth2client.ErrAuthRejected. Handler maps errors to statuses:
//
//	*ValidationError                 400
//	oauth2client.ErrAuthRejected     401
//	*oauth2client.AuthExchangeError  503
//	*UpstreamError                   502, or 503 when the downstream is unreachable
//
// Usage records carrying an MCC-MNC are enriched through a CarrierResolver,
// normally a *carrier.Cache.
package analytics
