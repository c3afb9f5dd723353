package bot

import "testing"

func TestRespond(t *testing.T) {
	tests := []struct {
		message  string
		want     Rule
		priority bool
	}{
		{"J'ai un bug", RuleTechnical, false},
		{"J'AI UN BUG", RuleTechnical, false},
		{"Une ERREUR s'affiche", RuleTechnical, false},
		{"Problème de connexion", RuleTechnical, false},
		{"Je cherche une formation", RuleCoaching, false},
		{"Infos sur le coaching ?", RuleCoaching, false},
		{"Ma facture est fausse", RuleBilling, true},
		{"Quel est le prix ?", RuleBilling, true},
		{"je veux parler à un humain", RuleHuman, false},
		{"Je voudrais un coach", RuleHuman, false},
		{"Y a-t-il une personne ?", RuleHuman, false},
		{"Bonjour", RuleDefault, false},
		{"", RuleDefault, false},
		// technical wins over billing because it comes first.
		{"bug sur le paiement", RuleTechnical, false},
	}
	var r Responder
	for _, tt := range tests {
		got := r.Respond(tt.message, "")
		if got.Rule != tt.want {
			t.Errorf("Respond(%q): rule got %q, want %q", tt.message, got.Rule, tt.want)
		}
		if got.Priority != tt.priority {
			t.Errorf("Respond(%q): priority got %v, want %v", tt.message, got.Priority, tt.priority)
		}
		if got.Text == "" {
			t.Errorf("Respond(%q): empty text", tt.message)
		}
	}
}

func TestRespondIgnoresCategory(t *testing.T) {
	var r Responder
	if got := r.Respond("Bonjour", "billing"); got.Rule != RuleDefault {
		t.Errorf("category changed the match: got %q", got.Rule)
	}
}
