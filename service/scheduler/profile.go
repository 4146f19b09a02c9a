package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/service/dao"
	"github.com/viant/sched/service/dao/store"
	"github.com/viant/sched/service/resource"
)

func newProfileStore() dao.Service[string, task.Profile] {
	return store.NewMemoryStore[string, task.Profile](
		func(p *task.Profile) string { return p.ID },
		func(p *task.Profile, param *dao.Parameter) bool {
			switch param.Name {
			case "Group":
				return p.Group == param.Value
			}
			return true
		})
}

// profile returns the task-type profile or nil
func (s *Service) profile(id string) *task.Profile {
	ret, err := s.profiles.Load(context.Background(), id)
	if err != nil {
		return nil
	}
	return ret
}

// updateProfile applies fn to a copy of the id profile and stores it
func (s *Service) updateProfile(id string, fn func(p *task.Profile)) error {
	if id == "" {
		return types.NewConfigError("id", "task id was empty")
	}
	ctx := context.Background()
	current, err := s.profiles.Load(ctx, id)
	switch {
	case err == nil:
		current = current.Clone()
	case errors.Is(err, dao.ErrNotFound):
		current = &task.Profile{ID: id}
	default:
		return err
	}
	fn(current)
	return s.profiles.Save(ctx, current)
}

// Profile returns a copy of the stored task-type profile
func (s *Service) Profile(id string) (*task.Profile, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := s.profile(id)
	return ret.Clone(), ret != nil
}

// Profiles returns task-type profiles assigned to group, or all when group is empty
func (s *Service) Profiles(group string) ([]*task.Profile, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	var params []*dao.Parameter
	if group != "" {
		params = append(params, dao.NewParameter("Group", group))
	}
	return s.profiles.List(context.Background(), params...)
}

// SetProfile stores all task-type defaults at once
func (s *Service) SetProfile(profile *task.Profile) error {
	if profile == nil {
		return types.NewConfigError("profile", "was nil")
	}
	if profile.Priority != priority.Unspecified && !profile.Priority.IsValid() {
		return types.NewConfigError("priority", "unsupported level %v", profile.Priority)
	}
	if err := resource.CheckRequirements(profile.Resources); err != nil {
		return err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if profile.Group != "" && !s.groups.Has(profile.Group) {
		return types.NewConfigError("group", "unknown group %q", profile.Group)
	}
	if err := s.resources.Schedulable(profile.Resources); err != nil {
		return err
	}
	return s.profiles.Save(context.Background(), profile.Clone())
}

// SetPriority sets the default priority for subsequent submissions of id
func (s *Service) SetPriority(id string, level priority.Level) error {
	if !level.IsValid() {
		return types.NewConfigError("priority", "unsupported level %v", level)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.updateProfile(id, func(p *task.Profile) { p.Priority = level })
}

// GetPriority returns the priority subsequent submissions of id resolve to
// before any group override or aging boost.
func (s *Service) GetPriority(id string) priority.Level {
	s.mux.Lock()
	defer s.mux.Unlock()
	if p := s.profile(id); p != nil {
		return p.Priority.Or(s.config.DefaultPriority)
	}
	return s.config.DefaultPriority
}

// SetEstimatedDuration sets the shortest-job-first hint for id
func (s *Service) SetEstimatedDuration(id string, duration time.Duration) error {
	if duration < 0 {
		return types.NewConfigError("estimatedDuration", "must not be negative, got %v", duration)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.updateProfile(id, func(p *task.Profile) { p.EstimatedDuration = duration })
}

// SetDeadline sets a relative deadline applied to each submission of id
func (s *Service) SetDeadline(id string, in time.Duration) error {
	if in < 0 {
		return types.NewConfigError("deadline", "must not be negative, got %v", in)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.updateProfile(id, func(p *task.Profile) { p.DeadlineIn = in })
}

// AssignToGroup makes subsequent submissions of id members of group
func (s *Service) AssignToGroup(id, group string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if !s.groups.Has(group) {
		return types.NewConfigError("group", "unknown group %q", group)
	}
	return s.updateProfile(id, func(p *task.Profile) { p.Group = group })
}

// SetResourceRequirements sets the units of each resource a submission of id reserves
func (s *Service) SetResourceRequirements(id string, requirements map[string]int) error {
	if err := resource.CheckRequirements(requirements); err != nil {
		return err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.resources.Schedulable(requirements); err != nil {
		return err
	}
	return s.updateProfile(id, func(p *task.Profile) { p.Resources = task.CloneResources(requirements) })
}
