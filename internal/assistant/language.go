package assistant

import "math/rand/v2"

const (
	PhraseDontKnow    = "I don't know you. Shush!"
	PhraseNoContext   = "No active context to quit."
	PhraseQuitContext = "Out of context: %s"
)

var dontUnderstand = []string{
	"Excuse me?",
	"Sorry?",
	"Can you repeat?",
}

// DontUnderstand picks one of the replies for an unknown command.
func DontUnderstand() string {
	return dontUnderstand[rand.IntN(len(dontUnderstand))]
}

// DontUnderstandPhrases lists every possible DontUnderstand reply.
func DontUnderstandPhrases() []string {
	out := make([]string, len(dontUnderstand))
	copy(out, dontUnderstand)
	return out
}
