package goSession

import (
	"context"
	"testing"
)

func benchPair(b *testing.B, m *Manager) TokenPair {
	b.Helper()
	pair, err := m.GenerateTokenPair(context.Background(), Identity{UserID: "bench", Email: "bench@example.com"})
	if err != nil {
		b.Fatalf("GenerateTokenPair: %v", err)
	}
	return pair
}

func BenchmarkVerifyTokenMemory(b *testing.B) {
	m := newTestManager(b, testConfig(), nil)
	pair := benchPair(b, m)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.VerifyToken(ctx, pair.AccessToken); err != nil {
			b.Fatalf("VerifyToken: %v", err)
		}
	}
}

func BenchmarkVerifyTokenRedis(b *testing.B) {
	m, _ := newRedisManager(b, testConfig())
	pair := benchPair(b, m)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.VerifyToken(ctx, pair.AccessToken); err != nil {
			b.Fatalf("VerifyToken: %v", err)
		}
	}
}

func BenchmarkVerifyTokenParallel(b *testing.B) {
	m := newTestManager(b, testConfig(), nil)
	pair := benchPair(b, m)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := m.VerifyToken(ctx, pair.AccessToken); err != nil {
				b.Errorf("VerifyToken: %v", err)
				return
			}
		}
	})
}

func BenchmarkRefreshRotate(b *testing.B) {
	m, _ := newRedisManager(b, testConfig())
	refresh := benchPair(b, m).RefreshToken
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := m.RefreshAccessToken(ctx, refresh)
		if err != nil {
			b.Fatalf("RefreshAccessToken: %v", err)
		}
		refresh = pair.RefreshToken
	}
}

func BenchmarkGenerateAndInvalidate(b *testing.B) {
	m := newTestManager(b, testConfig(), nil)
	ctx := context.Background()
	id := Identity{UserID: "bench"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := m.GenerateTokenPair(ctx, id)
		if err != nil {
			b.Fatalf("GenerateTokenPair: %v", err)
		}
		if err := m.InvalidateSession(ctx, pair.SessionID); err != nil {
			b.Fatalf("InvalidateSession: %v", err)
		}
	}
}
