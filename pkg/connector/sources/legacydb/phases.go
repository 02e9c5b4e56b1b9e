package legacydb

import (
	"context"

	"github.com/ajitpratap0/shepherd/pkg/connector/base"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"go.uber.org/zap"
)

type phaseContext struct {
	*Source
	run      *extract.Run
	phase    string
	w        core.RecordWriter
	progress *base.ProgressReporter
	logger   *zap.Logger

	families map[int64][]extract.Member
}

// changed restricts q to rows changed after the run's watermark.
func (pc *phaseContext) changed(q *selectQuery) *selectQuery {
	if w := pc.run.Window.Watermark; w != nil {
		q.Where("updated_at IS NULL OR updated_at > ?", w.UTC())
	}
	return q
}

func (pc *phaseContext) emit(key extract.DedupKey, rec models.Record) error {
	if !pc.run.Dedup.ShouldProcess(key) {
		metrics.DuplicatesDropped.WithLabelValues(pc.phase).Inc()
		return nil
	}
	if err := pc.w.WriteRecord(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").
			WithDetail("key", string(key))
	}
	pc.progress.Increment(1)
	return nil
}

func scanError(err error, table string) error {
	return errors.Wrap(err, errors.ErrorTypeData, "failed to scan row").WithDetail("table", table)
}

func (pc *phaseContext) people(ctx context.Context) error {
	q := pc.changed(selectFrom("individuals",
		"id, first_name, last_name, birthdate, gender, status, email, family_id, updated_at")).
		OrderBy("id")

	return pc.each(ctx, q, func(r rows) error {
		var p models.Person
		var first, last, gender, status, email *string
		if err := r.Scan(&p.ID, &first, &last, &p.Birthdate, &gender, &status, &email, &p.HouseholdID, &p.UpdatedAt); err != nil {
			return scanError(err, "individuals")
		}
		p.FirstName, p.LastName = deref(first), deref(last)
		p.Gender, p.Status, p.Email = deref(gender), deref(status), deref(email)
		return pc.emit(extract.KeyOf(models.KindPerson, p.ID), &p)
	})
}

// familyMembers loads every family's members in position order. The result
// is cached for the rest of the phase.
func (pc *phaseContext) familyMembers(ctx context.Context) (map[int64][]extract.Member, error) {
	if pc.families != nil {
		return pc.families, nil
	}
	families := make(map[int64][]extract.Member)
	q := selectFrom("family_members", "family_id, individual_id, role").
		OrderBy("family_id, position, individual_id")
	err := pc.each(ctx, q, func(r rows) error {
		var m extract.Member
		var role *string
		if err := r.Scan(&m.GroupID, &m.ID, &role); err != nil {
			return scanError(err, "family_members")
		}
		m.Role = deref(role)
		families[m.GroupID] = append(families[m.GroupID], m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	pc.families = families
	return families, nil
}

func (pc *phaseContext) households(ctx context.Context) error {
	families, err := pc.familyMembers(ctx)
	if err != nil {
		return err
	}

	q := pc.changed(selectFrom("families", "id, name")).OrderBy("id")
	return pc.each(ctx, q, func(r rows) error {
		var h models.Household
		var name *string
		if err := r.Scan(&h.ID, &name); err != nil {
			return scanError(err, "families")
		}
		h.Name = deref(name)

		members := families[h.ID]
		for _, m := range members {
			h.MemberIDs = append(h.MemberIDs, m.ID)
		}
		if rep, ok := pc.run.Representatives.ForGroup(h.ID, members); ok {
			h.RepresentativeID = models.ID(rep.ID)
		}
		return pc.emit(extract.KeyOf(models.KindHousehold, h.ID), &h)
	})
}

func (pc *phaseContext) groups(ctx context.Context) error {
	q := pc.changed(selectFrom("groups", "id, name, description, group_type")).OrderBy("id")
	err := pc.each(ctx, q, func(r rows) error {
		var g models.Group
		var name, description, groupType *string
		if err := r.Scan(&g.ID, &name, &description, &groupType); err != nil {
			return scanError(err, "groups")
		}
		g.Name, g.Description, g.GroupType = deref(name), deref(description), deref(groupType)
		return pc.emit(extract.KeyOf(models.KindGroup, g.ID), &g)
	})
	if err != nil {
		return err
	}

	q = pc.changed(selectFrom("group_members", "id, group_id, individual_id, role, joined_at")).
		OrderBy("group_id, id")
	return pc.each(ctx, q, func(r rows) error {
		var m models.GroupMember
		var role *string
		if err := r.Scan(&m.ID, &m.GroupID, &m.PersonID, &role, &m.JoinedAt); err != nil {
			return scanError(err, "group_members")
		}
		m.Role = deref(role)
		return pc.emit(extract.KeyOf(models.KindGroupMember, m.ID), &m)
	})
}

func (pc *phaseContext) contributions(ctx context.Context) error {
	// loaded up front so donor lookups never query while rows are open
	if _, err := pc.familyMembers(ctx); err != nil {
		return err
	}

	funds := make(map[int64]string)
	err := pc.each(ctx, selectFrom("funds", "id, name"), func(r rows) error {
		var id int64
		var name *string
		if err := r.Scan(&id, &name); err != nil {
			return scanError(err, "funds")
		}
		funds[id] = deref(name)
		return nil
	})
	if err != nil {
		return err
	}

	q := pc.changed(selectFrom("contributions",
		"id, individual_id, family_id, fund_id, amount_cents, currency, method, received_at"))
	if start := pc.run.Window.RangeStart; start != nil {
		q.Where("received_at >= ?", start.UTC())
	}
	if end := pc.run.Window.RangeEnd; end != nil {
		q.Where("received_at < ?", end.UTC())
	}
	q.OrderBy("received_at, id")

	return pc.each(ctx, q, func(r rows) error {
		var c models.Contribution
		var currency, method *string
		if err := r.Scan(&c.ID, &c.PersonID, &c.HouseholdID, &c.FundID, &c.AmountCents, &currency, &method, &c.ReceivedAt); err != nil {
			return scanError(err, "contributions")
		}
		c.Currency, c.Method = deref(currency), deref(method)

		if c.PersonID == nil && c.HouseholdID != nil {
			donor, err := pc.familyDonor(ctx, *c.HouseholdID)
			if err != nil {
				return err
			}
			c.PersonID = donor
		}
		if c.FundID != nil {
			if name, ok := funds[*c.FundID]; ok {
				if err := pc.emit(extract.KeyOf(models.KindFund, *c.FundID), &models.Fund{ID: *c.FundID, Name: name}); err != nil {
					return err
				}
			}
		}
		return pc.emit(extract.KeyOf(models.KindContribution, c.ID), &c)
	})
}

// familyDonor resolves a family-level gift to the family's representative.
func (pc *phaseContext) familyDonor(ctx context.Context, familyID int64) (*int64, error) {
	if rep, ok := pc.run.Representatives.Lookup(familyID); ok {
		return models.ID(rep.ID), nil
	}
	families, err := pc.familyMembers(ctx)
	if err != nil {
		return nil, err
	}
	if rep, ok := pc.run.Representatives.ForGroup(familyID, families[familyID]); ok {
		return models.ID(rep.ID), nil
	}
	return nil, nil
}

// attendance buffers the phase so every explicit id is reserved before any
// surrogate is minted. Rows with a NULL id receive a surrogate.
func (pc *phaseContext) attendance(ctx context.Context) error {
	var visits []*models.Attendance
	q := pc.changed(selectFrom("attendance", "id, individual_id, group_id, starts_at")).
		OrderBy("starts_at, individual_id")
	err := pc.each(ctx, q, func(r rows) error {
		var v models.Attendance
		var id *int64
		if err := r.Scan(&id, &v.PersonID, &v.GroupID, &v.StartsAt); err != nil {
			return scanError(err, "attendance")
		}
		if id != nil {
			v.ID = *id
		} else {
			v.Synthetic = true
		}
		visits = append(visits, &v)
		return nil
	})
	if err != nil {
		return err
	}

	ids, err := extract.AssignAll(pc.run.Identities(models.KindAttendance), visits)
	if err != nil {
		return err
	}
	for i, v := range visits {
		v.ID = ids[i]
		if err := pc.emit(extract.KeyOf(models.KindAttendance, v.ID), v); err != nil {
			return err
		}
	}
	pc.logger.Debug("attendance assigned", zap.Int("visits", len(visits)))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
