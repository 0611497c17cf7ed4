package db

import "testing"

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/mail?sslmode=disable", "pgx5://u:p@localhost:5432/mail?sslmode=disable"},
		{"postgresql://u@db/mail", "pgx5://u@db/mail"},
		{"pgx5://already", "pgx5://already"},
	}
	for _, tc := range tests {
		if got := migrationURL(tc.in); got != tc.want {
			t.Fatalf("migrationURL(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
