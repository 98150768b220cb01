package identity

import "testing"

func TestResolve(t *testing.T) {
	r := NewResolver("rando")

	author := r.Resolve("u_123", false)
	if author.Kind != KindRegistered || author.Anonymous() {
		t.Errorf("u_123 resolved as %v, want registered", author.Kind)
	}

	author = r.Resolve("u_123", true)
	if author.Kind != KindAnonymous {
		t.Errorf("anonymous flag ignored: got %v", author.Kind)
	}

	// A prefixed id is anonymous regardless of the flag.
	author = r.Resolve("rando_9f2", false)
	if author.Kind != KindAnonymous {
		t.Errorf("rando_9f2 resolved as %v, want anonymous", author.Kind)
	}
}

func TestKindOf(t *testing.T) {
	r := NewResolver("rando")
	if got := r.KindOf("rando_abc"); got != KindAnonymous {
		t.Errorf("KindOf(rando_abc) = %v, want anonymous", got)
	}
	if got := r.KindOf("u_abc"); got != KindRegistered {
		t.Errorf("KindOf(u_abc) = %v, want registered", got)
	}
}
