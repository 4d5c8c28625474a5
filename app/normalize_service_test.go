package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"faersignal/domain/faers"
)

type MockDrugNormalizer struct {
	mock.Mock
}

func (m *MockDrugNormalizer) Normalize(ctx context.Context, raw string, fields *faers.OpenFDAFields) (faers.Normalization, error) {
	args := m.Called(ctx, raw, fields)
	return args.Get(0).(faers.Normalization), args.Error(1)
}

type MockDrugRepository struct {
	mock.Mock
}

func (m *MockDrugRepository) DistinctDrugNames(ctx context.Context, onlyUnnormalized bool) ([]string, error) {
	args := m.Called(ctx, onlyUnnormalized)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDrugRepository) SaveNormalizations(ctx context.Context, byRaw map[string]faers.Normalization) error {
	args := m.Called(ctx, byRaw)
	return args.Error(0)
}

func (m *MockDrugRepository) NormalizationStats(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

func TestNormalizationService_NormalizeNames(t *testing.T) {
	n := new(MockDrugNormalizer)
	rx := faers.Normalization{Name: "aspirin", Source: faers.SourceRxNorm}
	n.On("Normalize", mock.Anything, "Bayer Aspirin", (*faers.OpenFDAFields)(nil)).Return(rx, nil).Once()
	n.On("Normalize", mock.Anything, "mystery", (*faers.OpenFDAFields)(nil)).
		Return(faers.Unmapped("mystery"), errors.New("rxnav down")).Once()

	svc := NewNormalizationService(n, quietLogger())
	got, err := svc.NormalizeNames(context.Background(), []string{"Bayer Aspirin", " bayer aspirin ", "", "mystery"})
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Equal(t, rx, got[faers.CacheKey("Bayer Aspirin")])
	assert.Equal(t, faers.SourceUnmapped, got["mystery"].Source)
	assert.Equal(t, map[string]int{string(faers.SourceRxNorm): 1, string(faers.SourceUnmapped): 1}, CountBySource(got))
	n.AssertExpectations(t)
}

func TestNormalizationService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := new(MockDrugNormalizer)
	n.On("Normalize", mock.Anything, "aspirin", (*faers.OpenFDAFields)(nil)).
		Return(faers.Unmapped("aspirin"), context.Canceled)

	_, err := NewNormalizationService(n, quietLogger()).NormalizeNames(ctx, []string{"aspirin"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizationService_NormalizeRepository(t *testing.T) {
	n := new(MockDrugNormalizer)
	n.On("Normalize", mock.Anything, "tylenol", (*faers.OpenFDAFields)(nil)).
		Return(faers.Normalization{Name: "acetaminophen", Source: faers.SourceRxNorm}, nil)

	repo := new(MockDrugRepository)
	repo.On("DistinctDrugNames", mock.Anything, true).Return([]string{"tylenol"}, nil)
	repo.On("SaveNormalizations", mock.Anything, mock.MatchedBy(func(m map[string]faers.Normalization) bool {
		return m["tylenol"].Name == "acetaminophen"
	})).Return(nil)

	counts, err := NewNormalizationService(n, quietLogger()).NormalizeRepository(context.Background(), repo, true)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(faers.SourceRxNorm)])
	repo.AssertExpectations(t)

	failing := new(MockDrugRepository)
	failing.On("DistinctDrugNames", mock.Anything, false).Return([]string(nil), errors.New("connection reset"))
	_, err = NewNormalizationService(n, quietLogger()).NormalizeRepository(context.Background(), failing, false)
	assert.Error(t, err)
}
