package principal

import "charon/internal/label"

// TestUsers is the canonical permission grid used by tests and local
// development: US, CAN (five-eyes, no NOFORN), and GBR subjects at each
// classification level, both cumulative and single-level.
func TestUsers() []label.Principal {
	usDiss := []string{"usg_noforn", "usg_relfvey", "usg_relgbr"}
	canDiss := []string{"usg_relfvey"}
	gbrDiss := []string{"usg_relfvey", "usg_relgbr"}

	cumulative := map[string][]string{
		"unclassified": {"usg_unclassified"},
		"confidential": {"usg_confidential"},
		"secret":       {"usg_unclassified", "usg_confidential", "usg_secret"},
		"topsecret":    {"usg_unclassified", "usg_confidential", "usg_secret", "usg_topsecret"},
	}

	var users []label.Principal
	add := func(name string, cats, diss []string) {
		users = append(users, label.Principal{
			Name: name,
			Cats: label.NewSet(cats...),
			Diss: label.NewSet(diss...),
		})
	}

	add("us_unclassified_only", cumulative["unclassified"], usDiss)
	add("us_confidential_only", cumulative["confidential"], usDiss)
	add("us_secret_cumul", cumulative["secret"], usDiss)
	add("us_topsecret_cumul", cumulative["topsecret"], usDiss)
	add("us_secret_only", []string{"usg_secret"}, usDiss)
	add("us_topsecret_only", []string{"usg_topsecret"}, usDiss)

	add("can_unclassified", cumulative["unclassified"], canDiss)
	add("can_confidential_only", cumulative["confidential"], canDiss)
	add("can_secret_cumul", cumulative["secret"], canDiss)
	add("can_topsecret_cumul", cumulative["topsecret"], canDiss)
	add("can_secret_only", []string{"usg_secret"}, canDiss)
	add("can_topsecret_only", []string{"usg_topsecret"}, canDiss)

	add("gbr_unclassified", cumulative["unclassified"], gbrDiss)
	add("gbr_confidential_only", cumulative["confidential"], gbrDiss)
	add("gbr_secret_cumul", cumulative["secret"], gbrDiss)
	add("gbr_topsecret_cumul", cumulative["topsecret"], gbrDiss)
	add("gbr_secret_only", []string{"usg_secret"}, gbrDiss)
	add("gbr_topsecret_only", []string{"usg_topsecret"}, gbrDiss)

	return users
}
