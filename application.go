package desktopagent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"slices"
	"sort"
	"syscall"
	"time"
)

// Application represents the core application interface with configuration,
// module management, and service registration.
type Application interface {
	ConfigProvider() ConfigProvider
	SvcRegistry() ServiceRegistry
	RegisterModule(module Module)
	RegisterConfigSection(section string, cp ConfigProvider)
	ConfigSections() map[string]ConfigProvider
	GetConfigSection(section string) (ConfigProvider, error)
	RegisterService(name string, service any) error
	GetService(name string, target any) error
	Init() error
	Start() error
	Stop() error
	Run() error
	Logger() Logger
}

// ServiceRegistry allows registration and retrieval of services by name.
type ServiceRegistry map[string]any

// StdApplication represents the core StdApplication container
type StdApplication struct {
	cfgProvider    ConfigProvider
	cfgSections    map[string]ConfigProvider
	configFeeders  []Feeder
	svcRegistry    ServiceRegistry
	moduleRegistry ModuleRegistry
	logger         Logger
	stopTimeout    time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewStdApplication creates a new application instance
func NewStdApplication(cp ConfigProvider, logger Logger) *StdApplication {
	if logger == nil {
		logger = NopLogger()
	}
	return &StdApplication{
		cfgProvider:    cp,
		cfgSections:    make(map[string]ConfigProvider),
		svcRegistry:    make(ServiceRegistry),
		moduleRegistry: make(ModuleRegistry),
		logger:         logger,
		stopTimeout:    30 * time.Second,
	}
}

// ConfigProvider retrieves the application config provider
func (app *StdApplication) ConfigProvider() ConfigProvider {
	return app.cfgProvider
}

// SvcRegistry retrieves the service svcRegistry
func (app *StdApplication) SvcRegistry() ServiceRegistry {
	return app.svcRegistry
}

// RegisterModule adds a module to the application
func (app *StdApplication) RegisterModule(module Module) {
	app.moduleRegistry[module.Name()] = module
}

// RegisterConfigSection adds a configuration section to the application
func (app *StdApplication) RegisterConfigSection(section string, cp ConfigProvider) {
	app.cfgSections[section] = cp
}

// ConfigSections retrieves all registered configuration sections
func (app *StdApplication) ConfigSections() map[string]ConfigProvider {
	return app.cfgSections
}

// GetConfigSection retrieves a configuration section
func (app *StdApplication) GetConfigSection(section string) (ConfigProvider, error) {
	cp, exists := app.cfgSections[section]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConfigSectionNotFound, section)
	}
	return cp, nil
}

// SetConfigFeeders overrides the package level ConfigFeeders for this application.
func (app *StdApplication) SetConfigFeeders(feeders ...Feeder) {
	app.configFeeders = feeders
}

// SetStopTimeout sets the shutdown budget handed to Stoppable modules.
func (app *StdApplication) SetStopTimeout(timeout time.Duration) {
	app.stopTimeout = timeout
}

// RegisterService adds a service with type checking
func (app *StdApplication) RegisterService(name string, service any) error {
	if _, exists := app.svcRegistry[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}

	app.svcRegistry[name] = service
	app.logger.Debug("Registered service", "name", name, "type", reflect.TypeOf(service))
	return nil
}

// GetService retrieves a service and assigns it to target, which must be a
// pointer to a type the service is assignable to or implements.
func (app *StdApplication) GetService(name string, target any) error {
	service, exists := app.svcRegistry[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return ErrTargetNotPointer
	}

	serviceType := reflect.TypeOf(service)
	targetType := targetValue.Elem().Type()

	if targetType.Kind() == reflect.Interface && serviceType.Implements(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	}

	if serviceType.AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	} else if serviceType.Kind() == reflect.Ptr && serviceType.Elem().AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service).Elem())
		return nil
	}

	return fmt.Errorf("%w: service '%s' of type %s cannot be assigned to %s",
		ErrServiceIncompatible, name, serviceType, targetType)
}

// Init registers module configuration, loads it, and initializes modules in
// dependency order, injecting and registering services along the way.
func (app *StdApplication) Init() error {
	for name, module := range app.moduleRegistry {
		configurableModule, ok := module.(Configurable)
		if !ok {
			app.logger.Debug("Module does not implement Configurable, skipping", "module", name)
			continue
		}
		if err := configurableModule.RegisterConfig(app); err != nil {
			return fmt.Errorf("failed to register config for module %s: %w", name, err)
		}
	}

	if err := loadAppConfig(app); err != nil {
		return fmt.Errorf("failed to load app config: %w", err)
	}

	moduleOrder, err := app.resolveDependencies()
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	for _, moduleName := range moduleOrder {
		if _, ok := app.moduleRegistry[moduleName].(ServiceAware); ok {
			app.moduleRegistry[moduleName], err = app.injectServices(app.moduleRegistry[moduleName])
			if err != nil {
				return fmt.Errorf("failed to inject services for module '%s': %w", moduleName, err)
			}
		}

		if err = app.moduleRegistry[moduleName].Init(app); err != nil {
			return fmt.Errorf("failed to initialize module '%s': %w", moduleName, err)
		}

		if svcAware, ok := app.moduleRegistry[moduleName].(ServiceAware); ok {
			for _, svc := range svcAware.ProvidesServices() {
				if err = app.RegisterService(svc.Name, svc.Instance); err != nil {
					return fmt.Errorf("module '%s' failed to register service: %w", moduleName, err)
				}
			}
		}

		app.logger.Info("Initialized module", "module", moduleName, "type", fmt.Sprintf("%T", app.moduleRegistry[moduleName]))
	}

	return nil
}

// Start starts the application
func (app *StdApplication) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.ctx = ctx
	app.cancel = cancel

	modules, err := app.resolveDependencies()
	if err != nil {
		return err
	}

	for _, name := range modules {
		startableModule, ok := app.moduleRegistry[name].(Startable)
		if !ok {
			continue
		}
		app.logger.Info("Starting module", "module", name)
		if err := startableModule.Start(ctx); err != nil {
			return fmt.Errorf("failed to start module %s: %w", name, err)
		}
	}

	return nil
}

// Stop stops modules in reverse dependency order. Every module is asked to
// stop even if an earlier one fails; the last error is returned.
func (app *StdApplication) Stop() error {
	modules, err := app.resolveDependencies()
	if err != nil {
		return err
	}
	slices.Reverse(modules)

	ctx, cancel := context.WithTimeout(context.Background(), app.stopTimeout)
	defer cancel()

	var lastErr error
	for _, name := range modules {
		stoppableModule, ok := app.moduleRegistry[name].(Stoppable)
		if !ok {
			continue
		}
		app.logger.Info("Stopping module", "module", name)
		if err = stoppableModule.Stop(ctx); err != nil {
			app.logger.Error("Error stopping module", "module", name, "error", err)
			lastErr = err
		}
	}

	if app.cancel != nil {
		app.cancel()
	}

	return lastErr
}

// Run initializes and starts the application, then blocks until SIGINT or
// SIGTERM and stops it.
func (app *StdApplication) Run() error {
	if err := app.Init(); err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}

	waitForSignal(app.logger)
	return app.Stop()
}

func waitForSignal(logger Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig)
}

// Logger represents a logger
func (app *StdApplication) Logger() Logger {
	return app.logger
}

// injectServices resolves the module's required services and, for
// Constructable modules, rebuilds the module from them.
func (app *StdApplication) injectServices(module Module) (Module, error) {
	requiredServices := make(map[string]any)
	for _, dep := range module.(ServiceAware).RequiresServices() {
		service, serviceName, found := app.lookupDependency(dep)
		if !found {
			if dep.Required {
				return nil, fmt.Errorf("%w: %s for %s", ErrRequiredServiceNotFound, dependencyLabel(dep), module.Name())
			}
			continue
		}
		if err := checkServiceCompatibility(service, dep); err != nil {
			return nil, fmt.Errorf("failed to inject service '%s': %w", serviceName, err)
		}
		requiredServices[serviceName] = service
		if dep.Name != "" && dep.Name != serviceName {
			requiredServices[dep.Name] = service
		}
	}

	if withConstructor, ok := module.(Constructable); ok {
		newModule, err := withConstructor.Constructor()(app, requiredServices)
		if err != nil {
			return nil, fmt.Errorf("failed to construct module '%s': %w", module.Name(), err)
		}
		app.moduleRegistry[module.Name()] = newModule
		module = newModule
	}

	return module, nil
}

func (app *StdApplication) lookupDependency(dep ServiceDependency) (any, string, bool) {
	if dep.Name != "" {
		if svc, ok := app.svcRegistry[dep.Name]; ok {
			return svc, dep.Name, true
		}
	}
	if !dep.MatchByInterface || dep.SatisfiesInterface == nil || dep.SatisfiesInterface.Kind() != reflect.Interface {
		return nil, "", false
	}

	// deterministic order for interface matching
	names := make([]string, 0, len(app.svcRegistry))
	for name := range app.svcRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc := app.svcRegistry[name]
		if svc != nil && reflect.TypeOf(svc).Implements(dep.SatisfiesInterface) {
			return svc, name, true
		}
	}
	return nil, "", false
}

func dependencyLabel(dep ServiceDependency) string {
	if dep.Name != "" {
		return dep.Name
	}
	if dep.SatisfiesInterface != nil {
		return dep.SatisfiesInterface.String()
	}
	return "<unnamed>"
}

func checkServiceCompatibility(service any, dep ServiceDependency) error {
	if service == nil {
		return fmt.Errorf("%w: %s", ErrServiceNil, dep.Name)
	}

	serviceType := reflect.TypeOf(service)

	if dep.Type != nil && !serviceType.AssignableTo(dep.Type) {
		return fmt.Errorf("%w: service '%s' of type %s doesn't satisfy required type %s",
			ErrServiceWrongType, dep.Name, serviceType, dep.Type)
	}

	if dep.SatisfiesInterface != nil && dep.SatisfiesInterface.Kind() == reflect.Interface &&
		!serviceType.Implements(dep.SatisfiesInterface) {
		return fmt.Errorf("%w: service '%s' of type %s doesn't satisfy required interface %s",
			ErrServiceWrongInterface, dep.Name, serviceType, dep.SatisfiesInterface)
	}

	return nil
}

// resolveDependencies returns modules in initialization order. Explicit
// Dependencies are combined with implicit ones derived from required services
// another module provides.
func (app *StdApplication) resolveDependencies() ([]string, error) {
	graph := make(map[string][]string)
	for name, module := range app.moduleRegistry {
		if depAware, ok := module.(DependencyAware); ok {
			graph[name] = append(graph[name], depAware.Dependencies()...)
		} else {
			graph[name] = nil
		}
	}
	app.addImplicitDependencies(graph)

	var result []string
	visited := make(map[string]bool)
	temp := make(map[string]bool)

	var visit func(string) error
	visit = func(node string) error {
		if temp[node] {
			return fmt.Errorf("%w: %s", ErrCircularDependency, node)
		}
		if visited[node] {
			return nil
		}
		temp[node] = true

		for _, dep := range graph[node] {
			if _, exists := app.moduleRegistry[dep]; !exists {
				return fmt.Errorf("%w: %s depends on non-existent module %s",
					ErrModuleDependencyMissing, node, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited[node] = true
		temp[node] = false
		result = append(result, node)
		return nil
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if err := visit(node); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// addImplicitDependencies makes a module depend on the modules providing the
// services it requires by name or interface.
func (app *StdApplication) addImplicitDependencies(graph map[string][]string) {
	type provided struct {
		module   string
		instance any
	}
	providers := make(map[string]provided)
	for moduleName, module := range app.moduleRegistry {
		svcAware, ok := module.(ServiceAware)
		if !ok {
			continue
		}
		for _, svc := range svcAware.ProvidesServices() {
			providers[svc.Name] = provided{module: moduleName, instance: svc.Instance}
		}
	}

	for consumer, module := range app.moduleRegistry {
		svcAware, ok := module.(ServiceAware)
		if !ok {
			continue
		}
		for _, dep := range svcAware.RequiresServices() {
			for name, p := range providers {
				if p.module == consumer {
					continue
				}
				matchesName := dep.Name != "" && dep.Name == name
				matchesInterface := dep.MatchByInterface && dep.SatisfiesInterface != nil &&
					p.instance != nil && reflect.TypeOf(p.instance).Implements(dep.SatisfiesInterface)
				if (matchesName || matchesInterface) && !slices.Contains(graph[consumer], p.module) {
					graph[consumer] = append(graph[consumer], p.module)
				}
			}
		}
	}
}
