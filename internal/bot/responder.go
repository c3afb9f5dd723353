// Package bot produces canned support replies from a fixed keyword table.
package bot

import "strings"

type Rule string

const (
	RuleTechnical Rule = "technical"
	RuleCoaching  Rule = "coaching"
	RuleBilling   Rule = "billing"
	RuleHuman     Rule = "human"
	RuleDefault   Rule = "default"
)

// Reply is the outcome of matching a message against the table.
type Reply struct {
	Rule Rule   `json:"rule"`
	Text string `json:"text"`
	// Priority is set for billing questions.
	Priority bool `json:"priority"`
}

type rule struct {
	name     Rule
	keywords []string
	text     string
	priority bool
}

// Order matters: "coaching" must be tried before "coach".
var rules = []rule{
	{
		name:     RuleTechnical,
		keywords: []string{"problème", "bug", "erreur"},
		text:     "Je suis désolé pour ce problème. Pouvez-vous décrire plus en détail ce qui se passe (étapes, message d'erreur, navigateur) ?",
	},
	{
		name:     RuleCoaching,
		keywords: []string{"coaching", "formation"},
		text:     "Nous proposons des sessions de coaching adaptées à votre projet. Souhaitez-vous que je vous mette en relation avec un coach ?",
	},
	{
		name:     RuleBilling,
		keywords: []string{"facture", "paiement", "prix"},
		text:     "Votre question concernant la facturation a bien été prise en compte et traitée en priorité.",
		priority: true,
	},
	{
		name:     RuleHuman,
		keywords: []string{"coach", "humain", "personne"},
		text:     "Je vous mets en relation avec un coach humain. Un membre de l'équipe va vous répondre.",
	},
}

const defaultText = "Merci pour votre message. Je transfère votre demande à un membre de l'équipe qui vous répondra rapidement."

// Responder is stateless; the zero value is ready to use.
type Responder struct{}

// Respond matches message case-insensitively against the table; the
// first matching rule wins. category is carried for callers that log it
// and does not influence the match.
func (Responder) Respond(message, category string) Reply {
	text := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return Reply{Rule: r.name, Text: r.text, Priority: r.priority}
			}
		}
	}
	return Reply{Rule: RuleDefault, Text: defaultText}
}
