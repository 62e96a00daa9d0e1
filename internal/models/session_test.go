package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotSessionConversion(t *testing.T) {
	semID, semName := "s1", "1st Semester"
	snap := SessionSnapshot{
		State:             SessionStateActive,
		AcademicYearID:    "y1",
		AcademicYearLabel: "2024-2025",
		SemesterID:        &semID,
		SemesterName:      &semName,
	}
	session := snap.Session()
	assert.True(t, session.Complete())
	assert.Equal(t, "s1", session.SemesterID)

	partial := SessionSnapshot{State: SessionStateNoActiveSemester, AcademicYearID: "y1"}
	assert.False(t, partial.Session().Complete())
}

func TestSnapshotSameAsIgnoresObservedAt(t *testing.T) {
	a := SessionSnapshot{State: SessionStateNoActiveYear, ObservedAt: time.Now()}
	b := SessionSnapshot{State: SessionStateNoActiveYear, ObservedAt: time.Now().Add(time.Minute)}
	assert.True(t, a.SameAs(b))

	id := "s1"
	c := SessionSnapshot{State: SessionStateNoActiveYear, SemesterID: &id}
	assert.False(t, a.SameAs(c))
}

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusActive.Rank(), StatusUpcoming.Rank())
	assert.Less(t, StatusUpcoming.Rank(), StatusArchived.Rank())
}
