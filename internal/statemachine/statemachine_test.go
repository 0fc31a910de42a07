package statemachine

import "testing"

func TestDerive(t *testing.T) {
	cases := []struct {
		name                           string
		hasServer, hasClients, alive bool
		want                           State
	}{
		{"stopped-no-records", false, false, false, Stopped},
		{"stopped-dead-server", true, true, false, Stopped},
		{"active", true, true, true, Active},
		{"grace", true, false, true, Grace},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Derive(c.hasServer, c.hasClients, c.alive)
			if got != c.want {
				t.Errorf("Derive(%v,%v,%v) = %v, want %v", c.hasServer, c.hasClients, c.alive, got, c.want)
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	if Active.ExitCode() != 0 || Grace.ExitCode() != 1 || Stopped.ExitCode() != 2 {
		t.Fatal("unexpected exit codes")
	}
}
