package access

import "testing"

func TestRank_Order(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		if Rank(levels[i-1]) >= Rank(levels[i]) {
			t.Errorf("Rank(%s)=%d not below Rank(%s)=%d",
				levels[i-1], Rank(levels[i-1]), levels[i], Rank(levels[i]))
		}
	}
}

func TestRank_UnknownIsPublic(t *testing.T) {
	for _, l := range []Level{"", "superadmin", "MEMBER", "root"} {
		if got := Rank(l); got != Rank(Public) {
			t.Errorf("Rank(%q): want %d, got %d", l, Rank(Public), got)
		}
	}
}

func TestHasAccess_Monotonic(t *testing.T) {
	levels := Levels()
	for i, required := range levels {
		for j, user := range levels {
			want := j >= i
			if got := HasAccess(user, required); got != want {
				t.Errorf("HasAccess(%s, %s): want %v, got %v", user, required, want, got)
			}
		}
	}
}

func TestHasAccess_UnknownUserLevel(t *testing.T) {
	// unknown user level ranks as public: denied for anything above public
	if HasAccess("banana", Member) {
		t.Error("unknown user level granted member access")
	}
	if !HasAccess("banana", Public) {
		t.Error("unknown user level denied public access")
	}
	// unknown required level also ranks as public: everyone passes
	if !HasAccess(Public, "banana") {
		t.Error("public user denied access to unknown requirement")
	}
}

func TestValid(t *testing.T) {
	for _, l := range Levels() {
		if !Valid(l) {
			t.Errorf("Valid(%s): want true", l)
		}
	}
	if Valid("guest") {
		t.Error("Valid(guest): want false")
	}
}
