//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/skycart/api/internal/domain"
	pconfig "github.com/skycart/api/internal/platform/config"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
)

func TestAddressRepositoryReconcileIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "address-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewAddressRepository(provider)
	if err != nil {
		t.Fatalf("new address repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const userID = "user-addr-1"
	home := domain.Address{
		FullName:   "Asha Rao",
		Phone:      "+91-9000000000",
		Street:     "12 Hill Road",
		City:       "Mumbai",
		State:      "MH",
		PostalCode: "400050",
		Country:    "India",
	}

	first, created, err := repo.Reconcile(ctx, userID, home)
	if err != nil {
		t.Fatalf("reconcile first: %v", err)
	}
	if !created {
		t.Fatalf("expected first reconcile to insert")
	}
	if !first.IsDefault {
		t.Fatalf("expected first address to become the default")
	}

	// The same destination with cosmetic differences must dedup onto the
	// stored document instead of inserting a second copy.
	variant := home
	variant.FullName = "A. Rao"
	variant.Phone = "+91-9111111111"
	second, created, err := repo.Reconcile(ctx, userID, variant)
	if err != nil {
		t.Fatalf("reconcile duplicate: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate destination to reuse the stored address")
	}
	if second.ID != first.ID {
		t.Fatalf("expected stored id %q, got %q", first.ID, second.ID)
	}

	addrs, err := repo.List(ctx, userID)
	if err != nil {
		t.Fatalf("list after duplicate: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("expected a single stored address, got %d", len(addrs))
	}

	office := domain.Address{
		FullName:   "Asha Rao",
		Phone:      "+91-9000000000",
		Street:     "7 Tech Park",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "India",
	}
	third, created, err := repo.Reconcile(ctx, userID, office)
	if err != nil {
		t.Fatalf("reconcile new destination: %v", err)
	}
	if !created {
		t.Fatalf("expected new destination to insert")
	}
	if !third.IsDefault {
		t.Fatalf("expected the latest destination to become the default")
	}

	addrs, err = repo.List(ctx, userID)
	if err != nil {
		t.Fatalf("list after second destination: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected two stored addresses, got %d", len(addrs))
	}
	defaults := 0
	for _, addr := range addrs {
		if addr.IsDefault {
			defaults++
			if addr.ID != third.ID {
				t.Fatalf("expected %q to hold the default, got %q", third.ID, addr.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default address, got %d", defaults)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
