package pack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourze/php-packer-sub000/internal/config"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/phpast"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestPackS1HappyPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "composer.json", `{"autoload": {"psr-4": {"App\\": "src/"}}}`)
	writeFile(t, root, "entry.php", "<?php\nuse App\\Child;\nnew Child();\n")
	writeFile(t, root, "src/Base.php", "<?php\nnamespace App;\nclass Base {}\n")
	writeFile(t, root, "src/Child.php", "<?php\nnamespace App;\nclass Child extends Base {}\n")

	cfgPath := filepath.Join(root, "phpacker.json")
	cfg := config.Config{Entry: "entry.php", Output: "build/app.php", Database: "build/pack.db"}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	writeFile(t, root, "phpacker.json", string(data))

	c, err := config.Load(cfgPath)
	require.NoError(t, err)

	result, err := New(nil).Pack(c)
	require.NoError(t, err)
	require.NotNil(t, result.Merged)

	count := 0
	phpast.Walk(result.Merged, phpast.VisitorFunc(func(n *phpast.Node) bool {
		if n.Kind == phpast.KindClass {
			count++
		}
		return true
	}))
	assert.Equal(t, 2, count)
	assert.Len(t, result.LoadOrder, 3)
}

func TestPackAppliesExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "composer.json", `{"autoload": {"psr-4": {"App\\": "src/"}}}`)
	writeFile(t, root, "entry.php", "<?php\nuse App\\Child;\nnew Child();\n")
	writeFile(t, root, "src/Base.php", "<?php\nnamespace App;\nclass Base {}\n")
	writeFile(t, root, "src/Child.php", "<?php\nnamespace App;\nclass Child extends Base {}\n")

	cfgPath := filepath.Join(root, "phpacker.json")
	cfg := config.Config{Entry: "entry.php", Output: "build/app.php", Database: "build/pack.db", Exclude: []string{"src/Base.php"}}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	writeFile(t, root, "phpacker.json", string(data))

	c, err := config.Load(cfgPath)
	require.NoError(t, err)

	result, err := New(nil).Pack(c)
	require.NoError(t, err)
	for _, f := range result.LoadOrder {
		assert.NotEqual(t, "src/Base.php", f.Path)
	}
}

func TestPackMissingEntryIsConfigurationError(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, "phpacker.json")
	cfg := config.Config{Entry: "does-not-exist.php", Output: "build/app.php", Database: "build/pack.db"}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	writeFile(t, root, "phpacker.json", string(data))

	c, err := config.Load(cfgPath)
	require.NoError(t, err)

	_, err = New(nil).Pack(c)
	require.Error(t, err)
	var cfgErr *perror.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
