// internal/browser/scripts.go
package browser

// snapshotScriptTmpl is evaluated inside the page to walk the rendered tree
// and return interactive element candidates plus a coarse structural digest.
// The single %d is the maximum traversal depth. The walk prunes invisible
// subtrees and non-semantic tags; all truncation and capping policy is
// applied Go-side so the contract stays in one place.
const snapshotScriptTmpl = `(() => {
	const MAX_DEPTH = %d;
	const SKIP_TAGS = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'SVG', 'PATH', 'META', 'LINK', 'HEAD', 'TEMPLATE', 'IFRAME']);
	const INTERACTIVE_TAGS = new Set(['A', 'BUTTON', 'INPUT', 'SELECT', 'TEXTAREA']);
	const INTERACTIVE_ROLES = new Set(['button', 'link', 'checkbox', 'radio', 'tab', 'menuitem', 'combobox', 'option', 'switch', 'searchbox', 'textbox']);
	// Margins extend the viewport band so near-offscreen targets stay reachable.
	const VIEWPORT_TOP_MARGIN = 200;
	const VIEWPORT_BOTTOM_MARGIN = 500;

	const elements = [];

	function isVisible(el) {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
			return false;
		}
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}

	function isInteractive(el) {
		const tag = el.tagName;
		if (tag === 'A') { return el.hasAttribute('href'); }
		if (INTERACTIVE_TAGS.has(tag)) { return true; }
		const role = el.getAttribute('role');
		if (role && INTERACTIVE_ROLES.has(role.toLowerCase())) { return true; }
		if (el.hasAttribute('onclick')) { return true; }
		const tabindex = el.getAttribute('tabindex');
		if (tabindex !== null && parseInt(tabindex, 10) >= 0) { return true; }
		return false;
	}

	function implicitRole(el) {
		const explicit = el.getAttribute('role');
		if (explicit) { return explicit.toLowerCase(); }
		switch (el.tagName) {
		case 'A': return 'link';
		case 'BUTTON': return 'button';
		case 'SELECT': return 'combobox';
		case 'TEXTAREA': return 'textbox';
		case 'INPUT': {
			const type = (el.getAttribute('type') || 'text').toLowerCase();
			if (type === 'button' || type === 'submit' || type === 'reset') { return 'button'; }
			if (type === 'checkbox') { return 'checkbox'; }
			if (type === 'radio') { return 'radio'; }
			return 'textbox';
		}
		default: return '';
		}
	}

	function elementText(el) {
		const inner = (el.innerText || '').trim();
		if (inner) { return inner; }
		if (el.value && typeof el.value === 'string') { return el.value.trim(); }
		const placeholder = el.getAttribute('placeholder');
		if (placeholder) { return placeholder.trim(); }
		const ariaLabel = el.getAttribute('aria-label');
		if (ariaLabel) { return ariaLabel.trim(); }
		const title = el.getAttribute('title');
		if (title) { return title.trim(); }
		return '';
	}

	function cssPath(el) {
		if (el.id) { return '#' + CSS.escape(el.id); }
		const name = el.getAttribute('name');
		if (name) { return el.tagName.toLowerCase() + '[name="' + CSS.escape(name) + '"]'; }
		// nth-of-type path, capped at four ancestors.
		const parts = [];
		let node = el;
		while (node && node.nodeType === Node.ELEMENT_NODE && parts.length < 4) {
			let part = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				let index = 1;
				let sibling = node.previousElementSibling;
				while (sibling) {
					if (sibling.tagName === node.tagName) { index++; }
					sibling = sibling.previousElementSibling;
				}
				part += ':nth-of-type(' + index + ')';
			}
			parts.unshift(part);
			if (node.id) { parts[0] = '#' + CSS.escape(node.id); break; }
			node = parent;
		}
		return parts.join(' > ');
	}

	function inViewportBand(rect) {
		return rect.bottom > -VIEWPORT_TOP_MARGIN &&
			rect.top < window.innerHeight + VIEWPORT_BOTTOM_MARGIN &&
			rect.right > 0 &&
			rect.left < window.innerWidth;
	}

	function walk(el, depth) {
		if (!el || depth > MAX_DEPTH) { return; }
		if (SKIP_TAGS.has(el.tagName)) { return; }
		if (!isVisible(el)) { return; }

		if (isInteractive(el)) {
			const rect = el.getBoundingClientRect();
			elements.push({
				tag: el.tagName.toLowerCase(),
				role: implicitRole(el),
				text: elementText(el),
				id: el.id || '',
				name: el.getAttribute('name') || '',
				href: el.getAttribute('href') || '',
				placeholder: el.getAttribute('placeholder') || '',
				ariaLabel: el.getAttribute('aria-label') || '',
				classes: el.className && typeof el.className === 'string' ? el.className : '',
				type: el.getAttribute('type') || '',
				selector: cssPath(el),
				x: rect.left + rect.width / 2,
				y: rect.top + rect.height / 2,
				width: rect.width,
				height: rect.height,
				enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
				inViewport: inViewportBand(rect)
			});
		}

		for (const child of el.children) {
			walk(child, depth + 1);
		}
	}

	walk(document.body, 0);

	const headline = document.querySelector('h1');
	return {
		url: window.location.href,
		title: document.title,
		viewportWidth: window.innerWidth,
		viewportHeight: window.innerHeight,
		scrollY: window.scrollY,
		regions: {
			hasHeader: !!document.querySelector('header, [role="banner"]'),
			hasNav: !!document.querySelector('nav, [role="navigation"]'),
			hasMain: !!document.querySelector('main, [role="main"]'),
			hasFooter: !!document.querySelector('footer, [role="contentinfo"]'),
			formCount: document.querySelectorAll('form').length,
			linkCount: document.querySelectorAll('a[href]').length,
			buttonCount: document.querySelectorAll('button, input[type="button"], input[type="submit"]').length,
			inputCount: document.querySelectorAll('input, select, textarea').length,
			headline: headline ? (headline.innerText || '').trim().slice(0, 120) : ''
		},
		elements: elements
	};
})()`
