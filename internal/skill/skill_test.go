package skill

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func TestUpdateApplyLeavesAbsentFieldsUntouched(t *testing.T) {
	base := Draft{Name: "Go", Level: 3, Category: CategoryLanguage, ExperienceMonths: 24}

	got := Update{Level: intPtr(5)}.Apply(base)

	assert.Equal(t, Draft{Name: "Go", Level: 5, Category: CategoryLanguage, ExperienceMonths: 24}, got)
}

func TestUpdateApplyDistinguishesZeroFromAbsent(t *testing.T) {
	base := Draft{Name: "Go", Level: 3, Category: CategoryLanguage, ExperienceMonths: 24}

	got := Update{ExperienceMonths: intPtr(0)}.Apply(base)

	assert.Equal(t, 0, got.ExperienceMonths)
	assert.Equal(t, "Go", got.Name)
}

func TestDraftNormalize(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		field   string
		wantErr bool
	}{
		{name: "valid", draft: Draft{Name: " React ", Level: 4, Category: CategoryFrontend}},
		{name: "blank name", draft: Draft{Name: "  ", Level: 4, Category: CategoryFrontend}, field: "name", wantErr: true},
		{name: "level too high", draft: Draft{Name: "Go", Level: 6, Category: CategoryLanguage}, field: "level", wantErr: true},
		{name: "level zero", draft: Draft{Name: "Go", Level: 0, Category: CategoryLanguage}, field: "level", wantErr: true},
		{name: "negative experience", draft: Draft{Name: "Go", Level: 1, Category: CategoryLanguage, ExperienceMonths: -1}, field: "experience_months", wantErr: true},
		{name: "missing category", draft: Draft{Name: "Go", Level: 1}, field: "category", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.draft.Normalize()
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "React", got.Name)
				return
			}
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "error = %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestUpdateNormalizeRejectsInvalidPresentField(t *testing.T) {
	_, err := Update{Name: strPtr("")}.Normalize()
	require.Error(t, err)

	got, err := Update{Category: strPtr(" Backend ")}.Normalize()
	require.NoError(t, err)
	require.NotNil(t, got.Category)
	assert.Equal(t, "Backend", *got.Category)
	assert.Nil(t, got.Name)
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	sqliteStore, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "skills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	stores := map[string]Store{
		"in-memory": NewInMemoryStore(),
		"sqlite":    sqliteStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			created, err := store.Create(ctx, "user-1", Draft{Name: "Next.js", Level: 3, Category: CategoryFrontend, ExperienceMonths: 12})
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)

			_, err = store.Create(ctx, "user-1", Draft{Name: "Go", Level: 4, Category: CategoryLanguage})
			require.NoError(t, err)
			_, err = store.Create(ctx, "user-2", Draft{Name: "Docker", Level: 2, Category: CategoryInfrastructure})
			require.NoError(t, err)

			list, err := store.List(ctx, "user-1")
			require.NoError(t, err)
			assert.Len(t, list, 2)

			updated, err := store.Update(ctx, "user-1", created.ID, Update{Level: intPtr(5)})
			require.NoError(t, err)
			assert.Equal(t, 5, updated.Level)
			assert.Equal(t, "Next.js", updated.Name)
			assert.Equal(t, 12, updated.ExperienceMonths)

			_, err = store.Get(ctx, "user-2", created.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			cats, err := store.Categories(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, []string{CategoryFrontend, CategoryLanguage}, cats)

			require.NoError(t, store.Delete(ctx, "user-1", created.ID))
			assert.ErrorIs(t, store.Delete(ctx, "user-1", created.ID), ErrNotFound)

			_, err = store.Update(ctx, "user-1", created.ID, Update{Level: intPtr(2)})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	store, err := NewStore(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "in-memory", store.Mode())
}
