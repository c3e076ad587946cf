package user

import (
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	pw := "supersecret"
	hash, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, pw); err != nil {
		t.Errorf("check should succeed: %v", err)
	}
	if err := CheckPassword(hash, "wrongpw"); err == nil {
		t.Errorf("expected failure for wrong password")
	}
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		points, level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{105, 2},
		{250, 3},
		{-5, 1},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.points); got != tc.level {
			t.Errorf("LevelFor(%d) = %d, want %d", tc.points, got, tc.level)
		}
	}
}

func TestBeforeCreate_AssignsIDAndLevel(t *testing.T) {
	u := User{Username: "x", QuestPoints: 230}
	if err := u.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
	if u.Level != 3 {
		t.Errorf("expected level 3, got %d", u.Level)
	}
}
