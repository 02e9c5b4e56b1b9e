package rest

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/ajitpratap0/shepherd/pkg/attachments"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/jsonapi"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"go.uber.org/zap"
)

func (pc *phaseContext) people(ctx context.Context) error {
	pc.startAvatars(pc.run.ID)
	opts := extract.Options{PageSize: pc.pageSize, Include: []string{"emails", "households"}}

	for res, err := range pc.paginator.Items(ctx, "people", opts, pc.run.Window) {
		if err != nil {
			return err
		}
		if !pc.assigned(res) {
			continue
		}
		var attrs personAttributes
		if !pc.decode(res, &attrs) {
			continue
		}

		person := &models.Person{
			ID:          res.ID,
			FirstName:   str(attrs.FirstName),
			LastName:    str(attrs.LastName),
			Birthdate:   timestamp(attrs.Birthdate),
			Gender:      str(attrs.Gender),
			Status:      str(attrs.Status),
			Email:       pc.primaryEmail(res),
			HouseholdID: relatedID(res, "households"),
			UpdatedAt:   res.UpdatedAt,
		}
		written, err := pc.emit(extract.KeyOf(typePerson, res.ID), person)
		if err != nil {
			return err
		}
		if written {
			if avatar, ok := pc.resolveURL(str(attrs.Avatar)); ok {
				pc.addAvatar(pc.run.ID, attachments.Job{OwnerKind: models.KindPerson, OwnerID: res.ID, URL: avatar})
			}
		}
	}
	return nil
}

// primaryEmail picks the email flagged primary, else the first with an address.
func (pc *phaseContext) primaryEmail(person jsonapi.Resource) string {
	var first string
	for _, email := range pc.run.Resolver.ResolveAll(person, "emails") {
		var attrs emailAttributes
		if err := email.DecodeAttributes(&attrs); err != nil || str(attrs.Address) == "" {
			continue
		}
		if attrs.Primary != nil && *attrs.Primary {
			return *attrs.Address
		}
		if first == "" {
			first = *attrs.Address
		}
	}
	return first
}

func (pc *phaseContext) households(ctx context.Context) error {
	opts := extract.Options{PageSize: pc.pageSize, Include: []string{"people"}}

	for res, err := range pc.paginator.Items(ctx, "households", opts, pc.run.Window) {
		if err != nil {
			return err
		}
		if !pc.assigned(res) {
			continue
		}
		var attrs householdAttributes
		if !pc.decode(res, &attrs) {
			continue
		}

		members := pc.householdMembers(res)
		household := &models.Household{ID: res.ID, Name: str(attrs.Name)}
		for _, m := range members {
			household.MemberIDs = append(household.MemberIDs, m.ID)
		}
		if rep, ok := pc.run.Representatives.ForGroup(res.ID, members); ok {
			household.RepresentativeID = models.ID(rep.ID)
		}
		if _, err := pc.emit(extract.KeyOf(typeHousehold, res.ID), household); err != nil {
			return err
		}
	}
	return nil
}

// householdMembers lists the household's people in relationship order with
// roles taken from the sideloaded person resources.
func (pc *phaseContext) householdMembers(household jsonapi.Resource) []extract.Member {
	var members []extract.Member
	for _, key := range household.Related("people") {
		if !key.Assigned() {
			continue
		}
		m := extract.Member{ID: key.ID, GroupID: household.ID}
		if person, ok := pc.run.Resolver.Resolve(key); ok {
			var attrs personAttributes
			if person.DecodeAttributes(&attrs) == nil {
				m.Role = str(attrs.HouseholdRole)
			}
		}
		members = append(members, m)
	}
	return members
}

func (pc *phaseContext) groups(ctx context.Context) error {
	opts := extract.Options{PageSize: pc.pageSize, Include: []string{"memberships"}}

	for res, err := range pc.paginator.Items(ctx, "groups", opts, pc.run.Window) {
		if err != nil {
			return err
		}
		if !pc.assigned(res) {
			continue
		}
		var attrs groupAttributes
		if !pc.decode(res, &attrs) {
			continue
		}

		group := &models.Group{
			ID:          res.ID,
			Name:        str(attrs.Name),
			Description: str(attrs.Description),
			GroupType:   str(attrs.GroupType),
		}
		if _, err := pc.emit(extract.KeyOf(typeGroup, res.ID), group); err != nil {
			return err
		}

		for _, membership := range pc.run.Resolver.ResolveAll(res, "memberships") {
			if !pc.assigned(membership) {
				continue
			}
			personID := relatedID(membership, "person")
			if personID == nil {
				pc.logger.Warn("membership without person, skipping",
					zap.String("resource", membership.Key().String()))
				continue
			}
			var mattrs membershipAttributes
			if !pc.decode(membership, &mattrs) {
				continue
			}
			member := &models.GroupMember{
				ID:       membership.ID,
				GroupID:  res.ID,
				PersonID: *personID,
				Role:     str(mattrs.Role),
				JoinedAt: timestamp(mattrs.JoinedAt),
			}
			if _, err := pc.emit(extract.KeyOf(typeMembership, membership.ID), member); err != nil {
				return err
			}
		}
	}
	return nil
}

// contributions walks donations one calendar month at a time when the run
// has a bounded range. Adjacent windows overlap and repeats are dropped by
// the Deduplicator.
func (pc *phaseContext) contributions(ctx context.Context) error {
	opts := extract.Options{
		PageSize:   pc.pageSize,
		Include:    []string{"fund", "household", "household.people"},
		RangeField: "received_at",
	}
	windows := extract.MonthlyWindows(pc.run.Window, pc.overlap)
	pc.logger.Debug("contribution windows", zap.Int("windows", len(windows)))

	for _, window := range windows {
		for res, err := range pc.paginator.Items(ctx, "donations", opts, window) {
			if err != nil {
				return err
			}
			if !pc.assigned(res) {
				continue
			}
			var attrs donationAttributes
			if !pc.decode(res, &attrs) {
				continue
			}
			received := timestamp(attrs.ReceivedAt)
			if received == nil {
				pc.logger.Warn("donation without received_at, skipping",
					zap.Int64("id", res.ID))
				continue
			}
			if !pc.run.Window.InRange(*received) {
				continue
			}

			contribution := &models.Contribution{
				ID:          res.ID,
				PersonID:    relatedID(res, "person"),
				HouseholdID: relatedID(res, "household"),
				FundID:      relatedID(res, "fund"),
				Currency:    str(attrs.AmountCurrency),
				Method:      str(attrs.PaymentMethod),
				ReceivedAt:  *received,
			}
			if attrs.AmountCents != nil {
				contribution.AmountCents = *attrs.AmountCents
			}
			if contribution.PersonID == nil && contribution.HouseholdID != nil {
				contribution.PersonID = pc.householdDonor(res, *contribution.HouseholdID)
			}

			if err := pc.emitFund(res); err != nil {
				return err
			}
			if _, err := pc.emit(extract.KeyOf(typeDonation, res.ID), contribution); err != nil {
				return err
			}
		}
	}
	return nil
}

// householdDonor resolves a household-level donation to the household's
// representative. Households seen earlier in the run are cached; otherwise
// the sideloaded household and its people are used. A choice made without
// any member role is not cached, so a later page with roles can still pick
// the head.
func (pc *phaseContext) householdDonor(donation jsonapi.Resource, householdID int64) *int64 {
	if rep, ok := pc.run.Representatives.Lookup(householdID); ok {
		return models.ID(rep.ID)
	}
	household, ok := pc.run.Resolver.ResolveFirst(donation, "household")
	if !ok {
		return nil
	}
	members := pc.householdMembers(household)
	if !extract.HasRoles(members) {
		pc.logger.Debug("household members have no roles, donor not cached",
			zap.Int64("household_id", householdID))
		if rep, ok := extract.SelectRepresentative(members); ok {
			return models.ID(rep.ID)
		}
		return nil
	}
	if rep, ok := pc.run.Representatives.ForGroup(householdID, members); ok {
		return models.ID(rep.ID)
	}
	return nil
}

func (pc *phaseContext) emitFund(donation jsonapi.Resource) error {
	fund, ok := pc.run.Resolver.ResolveFirst(donation, "fund")
	if !ok || !fund.Key().Assigned() {
		return nil
	}
	var attrs fundAttributes
	if !pc.decode(fund, &attrs) {
		return nil
	}
	_, err := pc.emit(extract.KeyOf(typeFund, fund.ID), &models.Fund{ID: fund.ID, Name: str(attrs.Name)})
	return err
}

// attendance buffers the phase so every explicit id is reserved before any
// surrogate is minted.
func (pc *phaseContext) attendance(ctx context.Context) error {
	opts := extract.Options{PageSize: pc.pageSize}

	var visits []*models.Attendance
	for res, err := range pc.paginator.Items(ctx, "attendances", opts, pc.run.Window) {
		if err != nil {
			return err
		}
		var attrs attendanceAttributes
		if !pc.decode(res, &attrs) {
			continue
		}
		personID := relatedID(res, "person")
		startsAt := timestamp(attrs.StartsAt)
		if personID == nil || startsAt == nil {
			pc.logger.Warn("attendance without person or start, skipping",
				zap.String("resource", res.Key().String()))
			continue
		}
		visits = append(visits, &models.Attendance{
			ID:        res.ID,
			PersonID:  *personID,
			GroupID:   relatedID(res, "group"),
			StartsAt:  *startsAt,
			Synthetic: !res.Key().Assigned(),
		})
	}
	return pc.emitVisits(visits)
}

// attachments downloads the avatars collected by the people phase of this
// run, or walks people itself when that phase did not run.
func (pc *phaseContext) attachments(ctx context.Context) error {
	cfg := pc.Config()
	if !cfg.Attachments.Enabled {
		pc.logger.Info("attachment downloads disabled")
		return nil
	}

	jobs, ok := pc.takeAvatars(pc.run.ID)
	if !ok {
		var err error
		if jobs, err = pc.collectAvatars(ctx); err != nil {
			return err
		}
	}

	dir := filepath.Join(cfg.Output.Directory, "attachments")
	downloader := attachments.NewDownloader(pc.governor, dir, pc.logger,
		attachments.WithWorkers(cfg.Attachments.Workers),
		attachments.WithMaxBytes(cfg.Attachments.MaxBytes))

	pc.progress.SetTotal(int64(len(jobs)))
	downloaded, downloadErr := downloader.Download(ctx, jobs)
	for i := range downloaded {
		a := &downloaded[i]
		key := extract.CompositeKey(models.KindAttachment, a.OwnerKind, strconv.FormatInt(a.OwnerID, 10))
		if _, err := pc.emit(key, a); err != nil {
			return err
		}
	}
	return downloadErr
}

func (pc *phaseContext) collectAvatars(ctx context.Context) ([]attachments.Job, error) {
	var jobs []attachments.Job
	opts := extract.Options{PageSize: pc.pageSize}
	for res, err := range pc.paginator.Items(ctx, "people", opts, pc.run.Window) {
		if err != nil {
			return nil, err
		}
		if !res.Key().Assigned() {
			continue
		}
		var attrs personAttributes
		if res.DecodeAttributes(&attrs) != nil {
			continue
		}
		if avatar, ok := pc.resolveURL(str(attrs.Avatar)); ok {
			jobs = append(jobs, attachments.Job{OwnerKind: models.KindPerson, OwnerID: res.ID, URL: avatar})
		}
	}
	return jobs, nil
}

// emitVisits assigns final ids and writes the visits in input order.
func (pc *phaseContext) emitVisits(visits []*models.Attendance) error {
	ids, err := extract.AssignAll(pc.run.Identities(models.KindAttendance), visits)
	if err != nil {
		return err
	}
	for i, visit := range visits {
		visit.ID = ids[i]
		if _, err := pc.emit(extract.KeyOf(typeAttendance, visit.ID), visit); err != nil {
			return err
		}
	}
	return nil
}

func (pc *phaseContext) assigned(res jsonapi.Resource) bool {
	if res.Key().Assigned() {
		return true
	}
	pc.logger.Warn("resource without id, skipping",
		zap.String("type", res.Type),
		zap.String("raw_id", res.RawID))
	return false
}

// decode reports false, after logging, for resources whose attributes do
// not match the expected shape.
func (pc *phaseContext) decode(res jsonapi.Resource, v interface{}) bool {
	if err := res.DecodeAttributes(v); err != nil {
		pc.logger.Warn("malformed attributes, skipping", zap.Error(err))
		return false
	}
	return true
}
