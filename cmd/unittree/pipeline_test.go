package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/initgraph/unittree/pkg/artifact"
	"github.com/initgraph/unittree/pkg/depgraph"
)

func writeUnit(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// TestPipeline_ArtifactRoundTrip mirrors scenario S4 end to end through the
// full cmd wiring (crawl, implicit injection, resolve, write, reload,
// resolve again), checking that build-deps run against a saved MS artifact
// reaches the same dependency-map nodes as resolving in the same process
// that built the MS (§12's build-deps standalone mode).
func TestPipeline_ArtifactRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, filepath.Join(root, "usr/lib/systemd/system/sshd.service"),
		"[Unit]\nDescription=OpenSSH\n[Service]\nExecStart=/usr/sbin/sshd -D\n")

	log := quietLogger()
	f := &flags{root: root, targetUnit: "sshd.service"}

	ms, err := buildMasterStruct(f, log)
	if err != nil {
		t.Fatalf("buildMasterStruct() error = %v", err)
	}

	sshd := ms.Get("sshd.service")
	if sshd == nil {
		t.Fatal("sshd.service missing from MS")
	}
	wantImplicit := map[string]string{
		"Requires": "sysinit.target",
		"Conflicts": "shutdown.target",
	}
	for kind, target := range wantImplicit {
		found := false
		for _, v := range sshd.Relations[kind] {
			if v == target {
				found = true
			}
		}
		if !found {
			t.Errorf("sshd.service missing implicit %s=%s", kind, target)
		}
	}

	dmInProcess, err := depgraph.Resolve(ms, "sshd.service", nil, log)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	prefix := filepath.Join(t.TempDir(), "out")
	msPath := artifact.MasterStructPath(prefix)
	if err := artifact.WriteJSON(msPath, ms, false); err != nil {
		t.Fatalf("WriteJSON(ms) error = %v", err)
	}

	reloaded, err := loadMasterStruct(msPath)
	if err != nil {
		t.Fatalf("loadMasterStruct() error = %v", err)
	}

	dmReloaded, err := depgraph.Resolve(reloaded, "sshd.service", nil, log)
	if err != nil {
		t.Fatalf("Resolve() on reloaded MS error = %v", err)
	}

	if len(dmInProcess.Nodes) != len(dmReloaded.Nodes) {
		t.Fatalf("node count mismatch: in-process=%d reloaded=%d", len(dmInProcess.Nodes), len(dmReloaded.Nodes))
	}
	for name, n := range dmInProcess.Nodes {
		rn, ok := dmReloaded.Nodes[name]
		if !ok {
			t.Errorf("node %s present in-process but missing after reload", name)
			continue
		}
		if len(n.Forward) != len(rn.Forward) {
			t.Errorf("node %s forward edge count mismatch: in-process=%d reloaded=%d", name, len(n.Forward), len(rn.Forward))
		}
	}
}
