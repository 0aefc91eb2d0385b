/*
Package authsdk is the Go client for the tokengate session service, and the
home of the wire types and error envelope the service itself writes.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (sign-up, sign-in, health)
  - Session: one signed-in user's token pair, with automatic refresh

	client := authsdk.NewSDKClient("https://auth.example.com")

	id, err := client.SignUp(ctx, authsdk.SignUpRequest{Name: "Alice", Username: "alice", Password: "pw123"})
	session, err := client.SignIn(ctx, "alice", "pw123")

	profile, err := session.Profile(ctx)
	err = session.SignOut(ctx)

A Session refreshes its access token through /auth/refresh-token shortly
before it expires. Once signed out, or once the refresh token is revoked, every
call fails with an *APIError whose Code is ErrorCodeUnauthorized.

# Errors

Every non-2xx response is decoded into an *APIError:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeInvalidCredentials {
		// wrong username or password
	}
*/
package authsdk
