package db

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tfkr-ae/azimuth/domain"
)

func TestMirrorRepo_GetMirrors(t *testing.T) {
	t.Run("should return an empty mirror slice if there are none configured", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		mirrors, err := repo.GetMirrors()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(mirrors) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(mirrors))
		}
	})

	t.Run("should return all the mirrors that are configured", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := []*domain.Mirror{
			{Survey: domain.SurveyVizieR, Override: "https://vizier.cfa.harvard.edu"},
			{Survey: domain.SurveyUnwise, Override: "https://unwise.me"},
		}

		for _, mirror := range want {
			err := repo.CreateOrUpdateMirror(mirror.Survey, mirror.Override)
			if err != nil {
				t.Fatalf("creating mirrors : %v", err)
			}
		}

		got, err := repo.GetMirrors()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}

		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})
}

func TestMirrorRepo_CreateOrUpdateMirror(t *testing.T) {
	t.Run("should create a new mirror and save it", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		wantSurvey := domain.SurveyVizieR
		wantOverride := "https://vizier.cfa.harvard.edu"

		err := repo.CreateOrUpdateMirror(wantSurvey, wantOverride)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetMirrors()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}

		if got[0].Survey != wantSurvey {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", wantSurvey, got[0].Survey)
		}
		if got[0].Override != wantOverride {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", wantOverride, got[0].Override)
		}

	})

	t.Run("should update an existing mirror when the survey matches", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		survey := domain.SurveyVizieR
		initialOverride := "https://vizier.cfa.harvard.edu"
		wantOverride := "https://vizier.nao.ac.jp"

		err := repo.CreateOrUpdateMirror(survey, initialOverride)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		err = repo.CreateOrUpdateMirror(survey, wantOverride)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetMirrors()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}

		if got[0].Survey != survey {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", survey, got[0].Survey)
		}

		if got[0].Override == initialOverride {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", wantOverride, got[0].Override)
		}

		if got[0].Override != wantOverride {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", wantOverride, got[0].Override)
		}

	})
}

func TestMirrorRepo_DeleteMirror(t *testing.T) {
	t.Run("should delete an existing mirror", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		survey := domain.SurveyVizieR
		override := "https://vizier.cfa.harvard.edu"

		err := repo.CreateOrUpdateMirror(survey, override)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		err = repo.DeleteMirror(survey)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		mirrors, err := repo.GetMirrors()

		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(mirrors) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(mirrors))
		}
	})

	t.Run("should return ErrNoMirrorForSurvey when deleting a mirror that doesn't exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.DeleteMirror(domain.SurveyVizieR)

		if !errors.Is(err, ErrNoMirrorForSurvey) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrNoMirrorForSurvey, err)
		}
	})
}
