package profile

import "testing"

func sampleSpec() *Spec {
	return &Spec{
		Image: "registry.example.com/acme/workers:1.4",
		Workers: []Worker{
			{Kind: WorkerKindExec, JobName: "thumbnail", Command: "/bin/run-thumbnail"},
			{
				Kind:    WorkerKindHTTP,
				Command: "/bin/serve",
				Port:    9100,
				Jobs: []HTTPJob{
					{JobName: "transcode", MaxPerContainer: 2, CountTowardsGlobalCap: true, Priority: 10},
					{JobName: "analyze", MaxPerContainer: 4},
				},
			},
		},
	}
}

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	a := Hash(sampleSpec())
	b := Hash(sampleSpec())
	if a != b {
		t.Errorf("Hash() not deterministic: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Hash() length = %d, want 16 hex chars", len(a))
	}
}

func TestHashOrderSensitive(t *testing.T) {
	t.Parallel()

	spec := sampleSpec()
	reordered := sampleSpec()
	reordered.Workers[0], reordered.Workers[1] = reordered.Workers[1], reordered.Workers[0]

	if Hash(spec) == Hash(reordered) {
		t.Error("Hash() should differ when worker order changes")
	}
}

func TestHashDetectsDrift(t *testing.T) {
	t.Parallel()

	spec := sampleSpec()
	drifted := sampleSpec()
	drifted.Image = "registry.example.com/acme/workers:1.5"

	if Hash(spec) == Hash(drifted) {
		t.Error("Hash() should differ when the image changes")
	}
}

func TestDiscoveryLabels(t *testing.T) {
	t.Parallel()

	h := Hash(sampleSpec())
	labels := DiscoveryLabels(h)

	if labels[LabelPlatform] != PlatformTag {
		t.Errorf("platform label = %q, want %q", labels[LabelPlatform], PlatformTag)
	}
	if labels[LabelProfileHash] != h {
		t.Errorf("profile_hash label = %q, want %q", labels[LabelProfileHash], h)
	}
	want := PlatformTag + ":profile_hash_" + h
	if labels[LabelProfileID] != want {
		t.Errorf("profile_id label = %q, want %q", labels[LabelProfileID], want)
	}
	if len(labels) != 3 {
		t.Errorf("labels = %d entries, want 3", len(labels))
	}
}

func TestFindJob(t *testing.T) {
	t.Parallel()

	spec := sampleSpec()

	t.Run("exec worker match", func(t *testing.T) {
		t.Parallel()
		def, ok := spec.FindJob("thumbnail")
		if !ok {
			t.Fatal("FindJob(thumbnail) not found")
		}
		if def.Kind != WorkerKindExec || def.Command != "/bin/run-thumbnail" {
			t.Errorf("unexpected definition: %+v", def)
		}
	})

	t.Run("http job inherits worker command and port", func(t *testing.T) {
		t.Parallel()
		def, ok := spec.FindJob("transcode")
		if !ok {
			t.Fatal("FindJob(transcode) not found")
		}
		if def.Command != "/bin/serve" || def.Port != 9100 {
			t.Errorf("definition did not inherit worker fields: %+v", def)
		}
		if def.MaxPerContainer != 2 || !def.CountTowardsGlobalCap || def.Priority != 10 {
			t.Errorf("definition lost job fields: %+v", def)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()
		if _, ok := spec.FindJob("missing"); ok {
			t.Error("FindJob(missing) = true, want false")
		}
	})
}

func TestJobNames(t *testing.T) {
	t.Parallel()

	names := sampleSpec().JobNames()
	want := []string{"thumbnail", "transcode", "analyze"}
	if len(names) != len(want) {
		t.Fatalf("JobNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("JobNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
