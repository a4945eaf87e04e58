// Package script builds the personalized narration read by the Santa
// voice. The clause order is fixed so repeated generation for the same
// order yields identical text.
package script

import "strings"

// Personalization is the customer-provided detail set for one order.
type Personalization struct {
	ChildName      string
	ChildAge       int
	ChildGender    string
	Achievements   string
	Interests      string
	SpecialMessage string
	MessageType    string
}

// Message types recognized by Generate. Anything else falls back to
// the generic closing encouragement.
const (
	MessageChristmasMorning = "christmas-morning"
	MessageBedtime          = "bedtime"
	MessageEncouragement    = "encouragement"
)

// Generate assembles the narration script. Optional sections are
// skipped when their field is empty; the output is deterministic for
// a given Personalization.
func Generate(p Personalization) string {
	var b strings.Builder

	b.WriteString("Ho ho ho! Merry Christmas! Hello there, ")
	b.WriteString(p.ChildName)
	b.WriteString("! ")

	b.WriteString("This is Santa Claus calling all the way from the North Pole, and I have a very special message just for you! ")

	if p.Achievements != "" {
		b.WriteString("My elves told me all about your wonderful achievements this year. ")
		b.WriteString(p.Achievements)
		b.WriteString(" I'm so proud of you! ")
	}

	if p.Interests != "" {
		b.WriteString("I also heard that you love ")
		b.WriteString(p.Interests)
		b.WriteString(". That's wonderful! ")
	}

	switch p.MessageType {
	case MessageChristmasMorning:
		b.WriteString("On Christmas morning, make sure to look under the tree for some special surprises! Remember, the magic of Christmas is all about love, family, and spreading joy to others. ")
	case MessageBedtime:
		b.WriteString("Now it's time for you to get a good night's sleep! Remember, my reindeer and I will be visiting very soon, and I need you to be in dreamland when I arrive! ")
	case MessageEncouragement:
		b.WriteString("I want you to know that you're doing an amazing job! Keep being kind, keep working hard, and always believe in yourself. ")
	default:
		b.WriteString("Keep being the wonderful person you are, and remember to spread kindness and joy wherever you go! ")
	}

	if p.SpecialMessage != "" {
		b.WriteString(p.SpecialMessage)
		b.WriteString(" ")
	}

	b.WriteString("Well, I better get back to preparing for Christmas! The elves are waiting for me in the workshop. ")
	b.WriteString("Remember, ")
	b.WriteString(p.ChildName)
	b.WriteString(", I'm always watching, and I know you're on the nice list! ")
	b.WriteString("Merry Christmas! Ho ho ho! See you soon!")

	return b.String()
}
