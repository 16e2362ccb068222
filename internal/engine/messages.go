package engine

// Message tables shown around sessions.
var (
	MidSessionMessages = []string{
		"You're literally ignoring your phone right now. Iconic.",
		"Neurons are connecting. Future self: proud.",
		"Somewhere, someone is procrastinating. Not you.",
		"Resist the scroll. Stay feral.",
		"Attention span: upgrading…",
		"Brain cells activated",
		"No scrolling. Stay locked.",
		"Future you will thank you.",
		"Focus mode engaged",
		"You're doing great",
		"Deep work in progress",
		"Main character energy",
		"This is the way",
		"Locked in fr",
		"No cap, you're crushing it",
	}

	// PrematureExitWarnings ask for confirmation before a strict run is
	// ended early.
	PrematureExitWarnings = []string{
		"Ending early? That's no XP. You sure?",
		"You'll lose all XP if you quit now.",
		"Premature exit = zero reward. Think twice.",
		"Bail out? You get nothing. Worth it?",
		"Stop now and lose all progress. Still want to?",
	}

	LevelUpMessages = []string{
		"LEVEL UP ⚡",
		"New Level. New Era.",
		"You're evolving 🧠🔥",
		"Level unlocked 🎯",
		"Main character moment ✨",
	}

	SessionCompleteMessages = []string{
		"Respect. That was clean.",
		"You showed up. That's what matters.",
		"One win at a time. Keep going.",
		"Momentum unlocked.",
		"nice grind",
		"locked in fr",
		"big brain energy",
		"we're so back",
		"touch grass later",
		"Absolutely unhinged focus",
		"Chef's kiss 👌",
		"You get it.",
	}
)

// ForfeitMessage is shown when a strict run was ended early.
const ForfeitMessage = "Ended early in strict mode. No XP for this run."

// TooShortMessage is shown when a run ends before a full minute.
const TooShortMessage = "too short, try again"

// Pick returns a random entry of msgs using e's source.
func (e *Engine) Pick(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[e.intn(len(msgs))]
}
