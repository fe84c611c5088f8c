package authz

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"github.com/clinichub/scheduling/internal/auth"
)

//go:embed model.conf
var modelConf string

//go:embed seed_policy.csv
var defaultSeedPolicy []byte

// ErrForbidden is returned when no grant rule permits the request.
var ErrForbidden = errors.New("forbidden")

// WildcardDomain is the policy domain consulted for principals without a
// home tenant on read paths.
const WildcardDomain = "*"

// Engine evaluates (subject-or-role, domain, object, action) grant rules.
// The synced enforcer tolerates concurrent reads while a reload swaps in a
// fresh rule set.
type Engine struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEngine builds the engine over a relational policy store. When the store
// is empty the seed policy is bulk-loaded; seedPath overrides the embedded
// default when non-empty.
func NewEngine(db *gorm.DB, seedPath string) (*Engine, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("create policy adapter: %w", err)
	}

	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("parse policy model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	enforcer.EnableAutoSave(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	eng := &Engine{enforcer: enforcer}

	empty, err := eng.storeEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		seed := io.Reader(bytes.NewReader(defaultSeedPolicy))
		if seedPath != "" {
			f, err := os.Open(seedPath)
			if err != nil {
				return nil, fmt.Errorf("open seed policy: %w", err)
			}
			defer f.Close()
			seed = f
		}
		if err := eng.seed(seed); err != nil {
			return nil, fmt.Errorf("seed policy store: %w", err)
		}
	}

	return eng, nil
}

func (e *Engine) storeEmpty() (bool, error) {
	policies, err := e.enforcer.GetPolicy()
	if err != nil {
		return false, fmt.Errorf("read policies: %w", err)
	}
	groups, err := e.enforcer.GetGroupingPolicy()
	if err != nil {
		return false, fmt.Errorf("read grouping policies: %w", err)
	}
	return len(policies) == 0 && len(groups) == 0, nil
}

// seed loads p/g rules from a CSV source. With auto-save on, every added
// rule is persisted through the adapter transactionally.
func (e *Engine) seed(src io.Reader) error {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read seed record: %w", err)
		}
		if len(record) < 2 {
			continue
		}

		kind, rule := record[0], record[1:]
		switch kind {
		case "p":
			if _, err := e.enforcer.AddPolicy(rule); err != nil {
				return fmt.Errorf("add policy %v: %w", rule, err)
			}
		case "g":
			if _, err := e.enforcer.AddGroupingPolicy(rule); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", rule, err)
			}
		}
	}

	return nil
}

// Permit reports whether the principal may perform act on obj within domain.
// The rule set is evaluated once for the exact subject (including its group
// memberships), then once per role the principal holds.
func (e *Engine) Permit(p *auth.Principal, domain, obj, act string) (bool, error) {
	ok, err := e.enforcer.Enforce(p.Subject, domain, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforce subject rule: %w", err)
	}
	if ok {
		return true, nil
	}

	for _, role := range p.Roles {
		ok, err := e.enforcer.Enforce(role, domain, obj, act)
		if err != nil {
			return false, fmt.Errorf("enforce role rule: %w", err)
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// Authorize is Permit with a terminal error on denial.
func (e *Engine) Authorize(p *auth.Principal, domain, obj, act string) error {
	ok, err := e.Permit(p, domain, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s in %s", ErrForbidden, act, obj, domain)
	}
	return nil
}

// Reload atomically replaces the in-memory rule set from the store.
// Concurrent Permit calls see either the old or the new set, never a
// partial one.
func (e *Engine) Reload() error {
	return e.enforcer.LoadPolicy()
}
