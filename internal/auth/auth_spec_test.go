package auth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func writeKeys(content string) string {
	path := filepath.Join(GinkgoT().TempDir(), "keys.txt")
	Expect(os.WriteFile(path, []byte(content), 0644)).NotTo(HaveOccurred())
	return path
}

var _ = Describe("NewKeyStore", func() {
	When("loading from a file with keys and comments", func() {
		It("parses keys and ignores comments", func() {
			ks, err := NewKeyStore(writeKeys(`# This is a comment
sk-key-one
sk-key-two: roads

# Another comment
sk-key-three: *
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(ks.Count()).To(Equal(3))
		})
	})

	When("CARTOGRAFIA_API_KEYS is set", func() {
		It("uses env keys instead of file", func() {
			GinkgoT().Setenv("CARTOGRAFIA_API_KEYS", "sk-env-one, sk-env-two")

			ks, err := NewKeyStore("")
			Expect(err).NotTo(HaveOccurred())
			Expect(ks.Count()).To(Equal(2))
			Expect(ks.Allowed("sk-env-one", "anything")).To(BeTrue())
		})
	})

	When("nothing is configured", func() {
		It("returns an empty store", func() {
			ks, err := NewKeyStore("")
			Expect(err).NotTo(HaveOccurred())
			Expect(ks.Count()).To(BeZero())
			Expect(ks.Validate("sk-any")).To(MatchError(ErrInvalidKey))
		})
	})

	When("the keys file is empty (only comments)", func() {
		It("returns an error", func() {
			_, err := NewKeyStore(writeKeys("# only comments\n"))
			Expect(err).To(HaveOccurred())
		})
	})

	When("the keys file does not exist", func() {
		It("returns an error", func() {
			_, err := NewKeyStore("/nonexistent/keys.txt")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Allowed", func() {
	var ks *KeyStore

	BeforeEach(func() {
		var err error
		ks, err = NewKeyStore(writeKeys("sk-all\nsk-partner: cadastre, utilities\nsk-star: roads, *\n"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("grants every layer to keys without a list", func() {
		Expect(ks.Allowed("sk-all", "cadastre")).To(BeTrue())
	})

	It("grants only listed layers", func() {
		Expect(ks.Allowed("sk-partner", "utilities")).To(BeTrue())
		Expect(ks.Allowed("sk-partner", "military")).To(BeFalse())
	})

	It("treats * as every layer", func() {
		Expect(ks.Allowed("sk-star", "military")).To(BeTrue())
	})

	It("denies unknown keys", func() {
		Expect(ks.Allowed("sk-nobody", "cadastre")).To(BeFalse())
		Expect(ks.Allowed("", "cadastre")).To(BeFalse())
	})
})

var _ = Describe("Reload", func() {
	It("picks up new keys and keeps old ones on error", func() {
		path := writeKeys("sk-old\n")
		ks, err := NewKeyStore(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(path, []byte("sk-new\n"), 0644)).To(Succeed())
		Expect(ks.Reload()).To(Succeed())
		Expect(ks.Validate("sk-new")).To(Succeed())
		Expect(ks.Validate("sk-old")).To(MatchError(ErrInvalidKey))

		Expect(os.WriteFile(path, []byte("# nothing\n"), 0644)).To(Succeed())
		Expect(ks.Reload()).To(HaveOccurred())
		Expect(ks.Validate("sk-new")).To(Succeed())
	})
})

var _ = Describe("Watch", func() {
	It("reloads the file when it changes", func() {
		path := writeKeys("sk-first\n")
		ks, err := NewKeyStore(path)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- ks.Watch(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))
		}()
		DeferCleanup(func() {
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})

		Eventually(func() error {
			if err := os.WriteFile(path, []byte("sk-second\n"), 0644); err != nil {
				return err
			}
			return ks.Validate("sk-second")
		}, 5*time.Second, 100*time.Millisecond).Should(Succeed())
	})
})

var _ = Describe("Context", func() {
	It("round-trips the key", func() {
		ctx := WithKey(context.Background(), "sk-ctx")
		Expect(KeyFromContext(ctx)).To(Equal("sk-ctx"))
		Expect(KeyFromContext(context.Background())).To(BeEmpty())
	})
})
