// Package domain holds the matchmaking domain model: users and their search
// criteria, matches, compatibility scoring, and per-user in-process state.
// Everything here is storage-agnostic; the queue and match stores persist
// these types but never extend them.
package domain

import "fmt"

// Relaxation steps. After each unsuccessful attempt the retry counter grows
// and the criteria are loosened at these exact steps. The relaxed criteria
// ride along in the redelivered request, so the effect is cumulative.
const (
	RelaxStepDating  = 3 // drop the dating requirement
	RelaxStepTopics  = 5 // accept the "general" topic
	RelaxStepFluency = 8 // widen the fluency band by one
)

// GeneralTopic is the catch-all topic added at RelaxStepTopics.
const GeneralTopic = "general"

// Criteria is an immutable set of search criteria. Construct it with
// NewCriteria so the invariants hold; a zero Criteria is invalid.
type Criteria struct {
	Language string   `json:"language"`
	Fluency  int      `json:"fluency"`
	Topics   []string `json:"topics"`
	Dating   bool     `json:"dating"`
}

// NewCriteria validates and returns search criteria.
func NewCriteria(language string, fluency int, topics []string, dating bool) (Criteria, error) {
	c := Criteria{Language: language, Fluency: fluency, Topics: topics, Dating: dating}
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Validate checks the criteria invariants: non-empty language, fluency in
// [0,10], and a non-empty topic set.
func (c Criteria) Validate() error {
	if c.Language == "" {
		return fmt.Errorf("%w: language must be non-empty", ErrInvalidCriteria)
	}
	if c.Fluency < 0 || c.Fluency > 10 {
		return fmt.Errorf("%w: fluency %d out of range [0,10]", ErrInvalidCriteria, c.Fluency)
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("%w: topics must be non-empty", ErrInvalidCriteria)
	}
	return nil
}

// CompatibleWith is the base compatibility check: same language, fluency
// within one level, and at least one shared topic.
func (c Criteria) CompatibleWith(other Criteria) bool {
	if c.Language != other.Language {
		return false
	}
	if abs(c.Fluency-other.Fluency) > 1 {
		return false
	}
	return len(intersect(c.Topics, other.Topics)) > 0
}

// HasTopic reports whether the topic is in the criteria's topic set.
func (c Criteria) HasTopic(topic string) bool {
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Relax returns criteria loosened for the given retry step. Steps other than
// the relaxation steps return the criteria unchanged. Relaxation only ever
// widens acceptance: dropping dating, adding the general topic, or lowering
// fluency by one never rejects a previously acceptable partner.
func (c Criteria) Relax(step int) Criteria {
	switch step {
	case RelaxStepDating:
		c.Dating = false
	case RelaxStepTopics:
		if !c.HasTopic(GeneralTopic) {
			topics := make([]string, len(c.Topics), len(c.Topics)+1)
			copy(topics, c.Topics)
			c.Topics = append(topics, GeneralTopic)
		}
	case RelaxStepFluency:
		if c.Fluency > 0 {
			c.Fluency--
		}
	}
	return c
}

func intersect(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	var common []string
	for _, t := range b {
		if seen[t] {
			common = append(common, t)
			seen[t] = false // dedupe
		}
	}
	return common
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
