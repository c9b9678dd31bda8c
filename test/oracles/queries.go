package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_pending_per_member",
			SQL: `SELECT member_id, COUNT(*) FROM change_requests
                  WHERE status = 'PENDING'
                  GROUP BY member_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_terminal_requests_audited",
			SQL: `SELECT id FROM change_requests
                  WHERE status IN ('APPROVED','REJECTED')
                    AND (reviewed_by IS NULL OR reviewed_at IS NULL)`,
		},
		{
			Name: "O3_pending_requests_clean",
			SQL: `SELECT id FROM change_requests
                  WHERE status = 'PENDING'
                    AND (reviewed_by IS NOT NULL OR reviewed_at IS NOT NULL OR rejection_reason IS NOT NULL)`,
		},
		{
			Name: "O4_unique_member_email",
			SQL: `SELECT email, COUNT(*) FROM members
                  GROUP BY email HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_unique_member_phone",
			SQL: `SELECT phone_number, COUNT(*) FROM members
                  GROUP BY phone_number HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_login_key_matches_email",
			SQL: `SELECT li.id FROM login_identities li
                  JOIN members m ON m.id = li.member_id
                  WHERE li.user_name <> m.email`,
		},
		{
			Name: "O7_version_monotonic_floor",
			SQL:  `SELECT id FROM members WHERE version < 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
