package graph

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) *time.Time {
	t := time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
	return &t
}

func jobsNamed(names ...string) []models.Job {
	jobs := make([]models.Job, len(names))
	for i, n := range names {
		jobs[i] = models.Job{ID: int64(i + 1), Name: n, Status: "completed", Conclusion: "success"}
	}
	return jobs
}

// assertValidOrder checks that every present dependency precedes its dependent
func assertValidOrder(t *testing.T, g *models.WorkflowGraph) {
	t.Helper()
	pos := make(map[string]int, len(g.ExecutionOrder))
	for i, name := range g.ExecutionOrder {
		pos[name] = i
	}
	assert.Len(t, pos, len(g.Jobs), "every job appears exactly once")
	for name, node := range g.Jobs {
		for _, dep := range node.Dependencies {
			if _, ok := g.Jobs[dep]; !ok {
				continue
			}
			assert.Less(t, pos[dep], pos[name], "%s must run before %s", dep, name)
		}
	}
}

func TestBuildOrdersDependenciesFirst(t *testing.T) {
	def := []byte(`
name: CI
on: push
jobs:
  A:
    runs-on: ubuntu-latest
  B:
    needs: A
  C:
    needs: [A, B]
`)
	// provider order deliberately reversed
	g, err := Build(jobsNamed("C", "B", "A"), def)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, g.ExecutionOrder)
	assert.Equal(t, []string{}, g.Jobs["A"].Dependencies)
	assert.Equal(t, []string{"A"}, g.Jobs["B"].Dependencies)
	assert.Equal(t, []string{"A", "B"}, g.Jobs["C"].Dependencies)
	assert.Empty(t, g.Cycles)
	assertValidOrder(t, g)
}

func TestBuildRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 11))

	for round := 0; round < 200; round++ {
		n := 1 + rng.IntN(15)
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("job%d", i)
		}

		// a job only needs lower-numbered jobs, so the graph is acyclic
		var def strings.Builder
		def.WriteString("jobs:\n")
		for i, name := range names {
			fmt.Fprintf(&def, "  %s:\n    runs-on: ubuntu-latest\n", name)
			var needs []string
			for j := 0; j < i; j++ {
				if rng.IntN(3) == 0 {
					needs = append(needs, names[j])
				}
			}
			if rng.IntN(10) == 0 {
				needs = append(needs, "skipped-job")
			}
			if len(needs) > 0 {
				fmt.Fprintf(&def, "    needs: [%s]\n", strings.Join(needs, ", "))
			}
		}

		provider := append([]string(nil), names...)
		rng.Shuffle(len(provider), func(i, j int) { provider[i], provider[j] = provider[j], provider[i] })

		g, err := Build(jobsNamed(provider...), []byte(def.String()), RejectCycles())
		require.NoError(t, err, def.String())
		assert.Empty(t, g.Cycles)
		assertValidOrder(t, g)
	}
}

func TestBuildToleratesDanglingNeeds(t *testing.T) {
	def := []byte(`
jobs:
  build:
    needs: lint
  test:
    needs: build
`)
	g, err := Build(jobsNamed("build", "test"), def)
	require.NoError(t, err)

	assert.Equal(t, []string{"lint"}, g.Jobs["build"].Dependencies)
	assert.NotContains(t, g.ExecutionOrder, "lint")
	assert.Equal(t, []string{"build", "test"}, g.ExecutionOrder)
	assertValidOrder(t, g)
}

func TestBuildMalformedDefinition(t *testing.T) {
	for name, def := range map[string][]byte{
		"empty":        nil,
		"invalid yaml": []byte("jobs: [unterminated"),
		"no jobs":      []byte("name: CI\n"),
	} {
		t.Run(name, func(t *testing.T) {
			g, err := Build(jobsNamed("a", "b"), def)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, g.ExecutionOrder)
			assert.Empty(t, g.Jobs["a"].Dependencies)
			assert.Empty(t, g.Jobs["b"].Dependencies)
		})
	}
}

func TestBuildMatchesDisplayNamesAndMatrixJobs(t *testing.T) {
	def := []byte(`
jobs:
  lint:
    name: Lint code
  test:
    needs: lint
    strategy:
      matrix:
        os: [ubuntu, macos]
  deploy:
    name: Deploy ${{ inputs.env }}
    needs: [test]
`)
	jobs := jobsNamed("Lint code", "test (ubuntu)", "test (macos)", "Deploy production")
	g, err := Build(jobs, def)
	require.NoError(t, err)

	assert.Equal(t, []string{"Lint code"}, g.Jobs["test (ubuntu)"].Dependencies)
	assert.Equal(t, []string{"test (ubuntu)", "test (macos)"}, g.Jobs["Deploy production"].Dependencies)
	assert.Equal(t, "Deploy production", g.ExecutionOrder[len(g.ExecutionOrder)-1])
	assertValidOrder(t, g)
}

func TestBuildCycles(t *testing.T) {
	def := []byte(`
jobs:
  a:
    needs: c
  b:
    needs: a
  c:
    needs: b
  d: {}
`)
	jobs := jobsNamed("a", "b", "c", "d")

	t.Run("best effort by default", func(t *testing.T) {
		g, err := Build(jobs, def)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, g.Cycles)
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, g.ExecutionOrder)
		assert.Len(t, g.ExecutionOrder, 4)
	})

	t.Run("strict", func(t *testing.T) {
		_, err := Build(jobs, def, RejectCycles())
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrMalformedGraph)
	})

	t.Run("self dependency", func(t *testing.T) {
		g, err := Build(jobsNamed("solo"), []byte("jobs:\n  solo:\n    needs: solo\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"solo"}, g.Cycles)
		assert.Equal(t, []string{"solo"}, g.ExecutionOrder)
	})
}

func TestBuildRejectsDuplicateJobNames(t *testing.T) {
	_, err := Build(jobsNamed("build", "build"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMalformedGraph)
}

func TestTotalDuration(t *testing.T) {
	jobs := []models.Job{
		{ID: 1, Name: "one", StartedAt: at(10, 0), CompletedAt: at(10, 5)},
		{ID: 2, Name: "two", StartedAt: at(10, 2), CompletedAt: at(10, 10)},
		{ID: 3, Name: "pending", StartedAt: at(9, 0)},
	}
	g, err := Build(jobs, nil)
	require.NoError(t, err)
	require.NotNil(t, g.TotalDuration)
	assert.Equal(t, 10*time.Minute, *g.TotalDuration)

	g, err = Build(jobsNamed("queued"), nil)
	require.NoError(t, err)
	assert.Nil(t, g.TotalDuration)
}

func TestGraphJSON(t *testing.T) {
	jobs := []models.Job{{ID: 1, Name: "one", StartedAt: at(10, 0), CompletedAt: at(10, 10)}}
	g, err := Build(jobs, nil)
	require.NoError(t, err)

	data, err := g.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"totalDuration":600000`)
	assert.Contains(t, string(data), `"executionOrder":["one"]`)
}
