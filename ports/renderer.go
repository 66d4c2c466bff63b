package ports

// ChallengeRenderer turns a solution into something a human can read and a
// bot cannot trivially parse. The result is handed to the client as is.
type ChallengeRenderer interface {
	Render(solution string) (string, error)
}
