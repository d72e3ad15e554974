package refnum

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type GeneratorSuite struct {
	suite.Suite
	gen *Generator
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.gen = New(NewMemorySequencer(), time.UTC)
}

func (s *GeneratorSuite) TestFirstOfDay() {
	ref, err := s.gen.Next(context.Background(), time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal("C202503150001", ref)
}

func (s *GeneratorSuite) TestSequentialCallsIncrease() {
	ctx := context.Background()
	now := time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC)

	prev := ""
	for i := 0; i < 12; i++ {
		ref, err := s.gen.Next(ctx, now)
		s.Require().NoError(err)
		s.Greater(ref, prev)
		prev = ref
	}
	s.Equal("C202503150012", prev)
}

func (s *GeneratorSuite) TestCounterResetsPerDay() {
	ctx := context.Background()
	_, err := s.gen.Next(ctx, time.Date(2025, 3, 15, 23, 59, 0, 0, time.UTC))
	s.Require().NoError(err)

	ref, err := s.gen.Next(ctx, time.Date(2025, 3, 16, 0, 1, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal("C202503160001", ref)
}

func (s *GeneratorSuite) TestDayUsesConfiguredLocation() {
	loc := time.FixedZone("UTC+3", 3*60*60)
	gen := New(NewMemorySequencer(), loc)

	// 22:30 UTC on the 15th is already the 16th at UTC+3.
	ref, err := gen.Next(context.Background(), time.Date(2025, 3, 15, 22, 30, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal("C202503160001", ref)
}

func (s *GeneratorSuite) TestConcurrentAllocationsAreUnique() {
	ctx := context.Background()
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	const workers = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		refs []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := s.gen.Next(ctx, now)
			s.NoError(err)
			mu.Lock()
			refs = append(refs, ref)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(refs)
	s.Len(refs, workers)
	for i := 1; i < len(refs); i++ {
		s.NotEqual(refs[i-1], refs[i])
	}
	s.Equal("C202503150064", refs[len(refs)-1])
}

func (s *GeneratorSuite) TestFormatWidensPastFourDigits() {
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	s.Equal("C202501020042", Format(day, 42))
	s.Equal("C2025010210000", Format(day, 10000))
}
