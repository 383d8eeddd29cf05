// Package auth signs the tokens fleet agents present to the session bridge.
//
// Each agent dials the bridge with an Authorization header carrying an HS256
// JWT whose subject is the agent's username and whose audience is
// "coven-bridge". Tokens are short-lived; a new one is issued per dial.
//
//	signer, err := auth.NewSigner([]byte(secret))
//	token, err := signer.Issue("TestBot_0", 5*time.Minute)
//	header := auth.BearerHeader(token)
//
// Bridges verify with the same secret:
//
//	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
//	username, err := signer.Verify(token)
package auth
