package evolution

import (
	"context"
	"fmt"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// Versions follow the date the company schema was introduced; the relation
// moves are one step per table so each runs in its own transaction.
const (
	VersionOrganizationRequired int64 = 20260203120500
	VersionCreateCompanies      int64 = 20260203121000
	VersionCreateCompanyUser    int64 = 20260203121500
	VersionContactsCompany      int64 = 20260203121510
	VersionStoresCompany        int64 = 20260203121520
	VersionProgressesCompany    int64 = 20260203121530
	VersionDealerEmailsCompany  int64 = 20260203121540
	VersionSentEmailsCompany    int64 = 20260203121550
	VersionDropDealershipUser   int64 = 20260203121560
)

// Steps returns every step in version order.
func Steps() []Step {
	return []Step{
		{VersionOrganizationRequired, "organization_required", organizationRequiredUp, organizationRequiredDown},
		{VersionCreateCompanies, "create_companies", createCompaniesUp, createCompaniesDown},
		{VersionCreateCompanyUser, "create_company_user", createCompanyUserUp, createCompanyUserDown},
		relocationStep(VersionContactsCompany, relocation{table: crmschema.Contacts, onDelete: "CASCADE", indexWith: "primary_contact"}),
		relocationStep(VersionStoresCompany, relocation{table: crmschema.Stores, onDelete: "CASCADE"}),
		relocationStep(VersionProgressesCompany, relocation{table: crmschema.Progresses, onDelete: "RESTRICT", indexWith: "date"}),
		relocationStep(VersionDealerEmailsCompany, relocation{table: crmschema.DealerEmails, onDelete: "RESTRICT"}),
		relocationStep(VersionSentEmailsCompany, relocation{table: crmschema.SentEmails, onDelete: "RESTRICT"}),
		{VersionDropDealershipUser, "drop_dealership_user", dropDealershipUserUp, dropDealershipUserDown},
	}
}

// Lookup finds a step by name or by version number.
func Lookup(nameOrVersion string) (Step, bool) {
	for _, s := range Steps() {
		if s.Name == nameOrVersion || fmt.Sprint(s.Version) == nameOrVersion {
			return s, true
		}
	}
	return Step{}, false
}

func organizationRequiredUp(ctx context.Context, env *Env) error {
	ok, err := env.Inspector.TableExists(ctx, crmschema.Dealerships)
	if err != nil {
		return err
	}
	if !ok {
		env.Logger.Info("dealerships table not found, nothing to backfill", "step", "organization_required")
		return nil
	}

	hasColumn, err := env.Inspector.ColumnExists(ctx, crmschema.Dealerships, "organization_id")
	if err != nil {
		return err
	}
	if !hasColumn {
		if err := env.exec(ctx, `ALTER TABLE dealerships ADD COLUMN organization_id BIGINT NULL
			CONSTRAINT dealerships_organization_id_foreign REFERENCES organizations (id)
			ON UPDATE CASCADE ON DELETE RESTRICT`); err != nil {
			return err
		}
	}

	fromOwner, err := env.Inspector.ColumnExists(ctx, crmschema.Users, "current_organization_id")
	if err != nil {
		return err
	}
	if fromOwner {
		err = env.exec(ctx, `UPDATE dealerships d SET organization_id = COALESCE(
			(SELECT u.current_organization_id FROM users u WHERE u.id = d.user_id), $1)
			WHERE d.organization_id IS NULL`, env.FallbackOrganizationID)
	} else {
		err = env.exec(ctx, `UPDATE dealerships SET organization_id = $1 WHERE organization_id IS NULL`,
			env.FallbackOrganizationID)
	}
	if err != nil {
		return err
	}

	if err := env.requireNoNulls(ctx, crmschema.Dealerships, "organization_id"); err != nil {
		return err
	}
	return env.setNotNull(ctx, crmschema.Dealerships, "organization_id")
}

func organizationRequiredDown(ctx context.Context, env *Env) error {
	return env.dropNotNull(ctx, crmschema.Dealerships, "organization_id")
}

const createCompaniesSQL = `CREATE TABLE companies (
    id BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL REFERENCES organizations (id) ON UPDATE CASCADE ON DELETE RESTRICT,
    user_id BIGINT NOT NULL REFERENCES users (id) ON UPDATE CASCADE ON DELETE RESTRICT,
    name VARCHAR(255) NOT NULL,
    address VARCHAR(255) NULL,
    city VARCHAR(255) NULL,
    state VARCHAR(255) NULL,
    zip_code VARCHAR(255) NULL,
    phone VARCHAR(255) NULL,
    email VARCHAR(255) NULL,
    current_solution_name VARCHAR(255) NULL,
    current_solution_use VARCHAR(255) NULL,
    notes TEXT NULL,
    status VARCHAR(255) NOT NULL DEFAULT 'active',
    rating VARCHAR(255) NOT NULL DEFAULT 'warm',
    type VARCHAR(255) NOT NULL DEFAULT 'automotive',
    in_development BOOLEAN NOT NULL DEFAULT FALSE,
    dev_status VARCHAR(255) NULL,
    created_at TIMESTAMP NULL,
    updated_at TIMESTAMP NULL
)`

const companyColumns = `id, organization_id, user_id, name, address, city, state, zip_code, phone, email,
    current_solution_name, current_solution_use, notes, status, rating, type, in_development,
    dev_status, created_at, updated_at`

func createCompaniesUp(ctx context.Context, env *Env) error {
	exists, err := env.Inspector.TableExists(ctx, crmschema.Companies)
	if err != nil {
		return err
	}
	if !exists {
		if err := env.exec(ctx, createCompaniesSQL); err != nil {
			return err
		}
		for _, col := range []string{"status", "rating", "type", "in_development"} {
			if err := env.createIndex(ctx, crmschema.Companies, "companies_"+col+"_index", col); err != nil {
				return err
			}
		}
	}

	hasSource, err := env.Inspector.TableExists(ctx, crmschema.Dealerships)
	if err != nil || !hasSource {
		return err
	}
	if err := env.exec(ctx, `INSERT INTO companies (`+companyColumns+`)
		SELECT `+companyColumns+` FROM dealerships
		ON CONFLICT (id) DO NOTHING`); err != nil {
		return err
	}
	return env.exec(ctx, `SELECT setval(pg_get_serial_sequence('companies', 'id'),
		COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM companies`)
}

func createCompaniesDown(ctx context.Context, env *Env) error {
	return env.exec(ctx, `DROP TABLE IF EXISTS companies`)
}

func createCompanyUserUp(ctx context.Context, env *Env) error {
	exists, err := env.Inspector.TableExists(ctx, crmschema.CompanyUser)
	if err != nil {
		return err
	}
	if !exists {
		if err := env.exec(ctx, `CREATE TABLE company_user (
			company_id BIGINT NOT NULL REFERENCES companies (id) ON UPDATE CASCADE ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users (id) ON UPDATE CASCADE ON DELETE CASCADE,
			created_at TIMESTAMP NULL,
			updated_at TIMESTAMP NULL,
			PRIMARY KEY (company_id, user_id)
		)`); err != nil {
			return err
		}
	}

	hasLegacy, err := env.Inspector.TableExists(ctx, crmschema.DealershipUser)
	if err != nil || !hasLegacy {
		return err
	}
	// Only an empty pivot is seeded; a populated one is owned by the application.
	return env.exec(ctx, `INSERT INTO company_user (company_id, user_id)
		SELECT dealership_id, user_id FROM dealership_user
		WHERE NOT EXISTS (SELECT 1 FROM company_user)`)
}

func createCompanyUserDown(ctx context.Context, env *Env) error {
	return env.exec(ctx, `DROP TABLE IF EXISTS company_user`)
}

func dropDealershipUserUp(ctx context.Context, env *Env) error {
	exists, err := env.Inspector.TableExists(ctx, crmschema.DealershipUser)
	if err != nil || !exists {
		return err
	}
	hasPivot, err := env.Inspector.TableExists(ctx, crmschema.CompanyUser)
	if err != nil {
		return err
	}
	if hasPivot {
		// Pairs added to the legacy pivot after it was copied are carried over
		// before it goes.
		if err := env.exec(ctx, `INSERT INTO company_user (company_id, user_id)
			SELECT dealership_id, user_id FROM dealership_user
			ON CONFLICT (company_id, user_id) DO NOTHING`); err != nil {
			return err
		}
	}
	return env.exec(ctx, `DROP TABLE dealership_user`)
}

func dropDealershipUserDown(ctx context.Context, env *Env) error {
	exists, err := env.Inspector.TableExists(ctx, crmschema.DealershipUser)
	if err != nil {
		return err
	}
	if !exists {
		if err := env.exec(ctx, `CREATE TABLE dealership_user (
			dealership_id BIGINT NOT NULL REFERENCES dealerships (id) ON UPDATE CASCADE ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users (id) ON UPDATE CASCADE ON DELETE CASCADE,
			created_at TIMESTAMP NULL,
			updated_at TIMESTAMP NULL,
			PRIMARY KEY (dealership_id, user_id)
		)`); err != nil {
			return err
		}
	}
	hasPivot, err := env.Inspector.TableExists(ctx, crmschema.CompanyUser)
	if err != nil || !hasPivot {
		return err
	}
	return env.exec(ctx, `INSERT INTO dealership_user (dealership_id, user_id)
		SELECT company_id, user_id FROM company_user
		ON CONFLICT (dealership_id, user_id) DO NOTHING`)
}
