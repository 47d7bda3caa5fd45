package store

import (
    "context"
    "os"

    "gopkg.in/yaml.v3"

    "weighgate/internal/engine"
    "weighgate/internal/model"
)

// SeedPack is a YAML bundle of catalog and rules loaded at startup via
// SEED_FILE. Rule documents use the same shape as the API payloads.
type SeedPack struct {
    Tenant    string              `yaml:"tenant"`
    Products  []seedProduct       `yaml:"products"`
    Packaging []model.PackagingIn `yaml:"packaging"`
    Rules     []yaml.Node         `yaml:"rules"`
    Config    *seedConfig         `yaml:"weighing"`
}

type seedProduct struct {
    Name        string  `yaml:"name"`
    CategoryID  string  `yaml:"categoryId"`
    WeightG     float64 `yaml:"weightGrams"`
    WeightOz    float64 `yaml:"weightOunces"`
    Price       float64 `yaml:"price"`
    ExternalRef string  `yaml:"externalRef"`
}

type seedConfig struct {
    ToleranceG  float64 `yaml:"toleranceGrams"`
    DisplayUnit string  `yaml:"displayUnit"`
}

func LoadSeedPack(path string) (SeedPack, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return SeedPack{}, err
    }
    var pack SeedPack
    if err := yaml.Unmarshal(data, &pack); err != nil {
        return SeedPack{}, err
    }
    return pack, nil
}

// ApplySeed loads catalog entries, rules and tolerance config into s.
// Rules are round-tripped through JSON so the engine's own decoding
// applies (the rule wire format is JSON, not YAML tags).
func ApplySeed(ctx context.Context, s Store, pack SeedPack) error {
    tenant := pack.Tenant
    if tenant == "" { tenant = "t_demo" }
    for _, sp := range pack.Products {
        in := model.ProductIn{Name: sp.Name, CategoryID: sp.CategoryID, WeightG: sp.WeightG, WeightOz: sp.WeightOz, PriceUnits: sp.Price, ExternalRef: sp.ExternalRef}
        if _, err := s.CreateProduct(ctx, tenant, in); err != nil { return err }
    }
    for _, pk := range pack.Packaging {
        if _, err := s.CreatePackaging(ctx, tenant, pk); err != nil { return err }
    }
    for _, node := range pack.Rules {
        var raw map[string]any
        if err := node.Decode(&raw); err != nil { return err }
        r, err := engine.RuleFromMap(raw)
        if err != nil { return err }
        if _, err := s.CreateRule(ctx, tenant, r); err != nil { return err }
    }
    if pack.Config != nil {
        cfg := model.WeighingConfig{ToleranceG: pack.Config.ToleranceG, DisplayUnit: pack.Config.DisplayUnit}
        if cfg.ToleranceG <= 0 { cfg.ToleranceG = model.DefaultToleranceG }
        if err := s.SaveWeighingConfig(ctx, tenant, cfg); err != nil { return err }
    }
    return nil
}
