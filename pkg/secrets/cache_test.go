package secrets

import (
	"sync"
	"testing"
	"time"
)

// helper: sample secret map as stored in Secrets Manager
func sampleSecret() map[string]string {
	return map[string]string{
		"client_id":     "1000.abc123",
		"client_secret": "def456",
		"refresh_token": "1000.refresh.xyz",
	}
}

func TestCache_PutAndGet(t *testing.T) {
	cache := NewCache[map[string]string](2 * time.Second)
	key := "prod/zoho/crm"

	// should miss initially
	if _, ok := cache.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Put(key, sampleSecret())

	// immediate hit
	if secret, ok := cache.Get(key); !ok {
		t.Fatal("expected cache hit")
	} else if secret["client_id"] != "1000.abc123" {
		t.Errorf("expected client_id=1000.abc123, got %s", secret["client_id"])
	}
}

func TestCache_Expiration(t *testing.T) {
	cache := NewCache[map[string]string](500 * time.Millisecond)
	key := "prod/zoho/crm"
	cache.Put(key, sampleSecret())

	time.Sleep(600 * time.Millisecond)

	if _, ok := cache.Get(key); ok {
		t.Fatal("expected expired cache entry")
	}
}

func TestCache_Bust(t *testing.T) {
	cache := NewCache[map[string]string](5 * time.Second)
	key := "prod/zoho/crm"
	cache.Put(key, sampleSecret())

	cache.Bust(key)
	if _, ok := cache.Get(key); ok {
		t.Fatal("expected cache miss after bust")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[map[string]string](2 * time.Second)
	key := "prod/zoho/crm"

	var wg sync.WaitGroup
	wg.Add(2)

	// Writer
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Put(key, sampleSecret())
			time.Sleep(time.Millisecond * 5)
		}
	}()

	// Reader
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Get(key)
			time.Sleep(time.Millisecond * 5)
		}
	}()

	wg.Wait()
}

func TestCache_CleanupExpired(t *testing.T) {
	cache := NewCache[map[string]string](200 * time.Millisecond)
	key1 := "prod/zoho/crm"
	key2 := "uat/zoho/crm"
	cache.Put(key1, sampleSecret())
	cache.Put(key2, sampleSecret())

	time.Sleep(300 * time.Millisecond)
	cache.cleanupExpired()

	if _, ok := cache.Get(key1); ok {
		t.Fatal("expected key1 expired and cleaned up")
	}
	if _, ok := cache.Get(key2); ok {
		t.Fatal("expected key2 expired and cleaned up")
	}
}

func TestCache_StartCleanerStops(t *testing.T) {
	cache := NewCache[map[string]string](50 * time.Millisecond)
	cache.Put("prod/zoho/crm", sampleSecret())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleaner(20*time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	if _, ok := cache.Get("prod/zoho/crm"); ok {
		t.Fatal("expected cleaner to evict expired entry")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
