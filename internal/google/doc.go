// Package google provides OAuth2 authentication and token storage for the
// Gmail REST source.
//
// Client credentials and the redirect URL come from configuration. Tokens
// are kept in a TokenStore, either JSON files under the user cache directory
// or the system keyring, and refreshed tokens are written back on use.
package google
