package browser

// In-page scripts. Each is a function declaration evaluated with rod and
// resolves to a JSON-serializable object. Selectors track the site's current
// markup and are expected to change.

const scrapeScript = `async () => {
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	const selectors = [
		'div.feed-shared-update-v2',
		'div.profile-creator-shared-feed-update__container',
		'div[data-urn]',
		'div[data-entity-urn]',
		'div.ember-view.occludable-update',
	];
	const candidates = Array.from(document.querySelectorAll(selectors.join(', ')));
	if (candidates.length === 0) {
		return { postId: 'error_' + Date.now(), error: 'Could not find the latest post element.' };
	}

	const score = (post) => {
		let s = 0;
		if (post.querySelector('.feed-shared-update-v2__description, .update-components-text')) s += 3;
		if (post.querySelector('button[aria-label*="Comment"], button[aria-label*="Like"]')) s += 2;
		if (post.querySelector('.update-components-actor__name, .feed-shared-actor__name')) s += 1;
		if (post.getAttribute('data-urn') || post.getAttribute('data-entity-urn')) s += 2;
		return s;
	};
	const post = candidates
		.map((el, i) => ({ el, i, s: score(el) }))
		.sort((a, b) => b.s - a.s || a.i - b.i)[0].el;

	const urn = post.getAttribute('data-urn') || post.getAttribute('data-entity-urn');
	const result = {
		postId: urn || 'post_' + Date.now(),
		postText: '',
		imageUrls: [],
		documentUrl: '',
		preReacted: false,
		error: '',
	};

	try {
		post.scrollIntoView({ block: 'center' });
		await sleep(300);

		result.preReacted = !!post.querySelector('button.react-button__trigger[aria-pressed="true"]');

		const text = post.querySelector('.feed-shared-update-v2__description .update-components-text, .update-components-text .text-view');
		result.postText = text ? text.innerText.trim() : '';

		const doc = post.querySelector('div.native-document-container, iframe[src*="native-document.html"]');
		if (doc) {
			result.documentUrl = doc.getAttribute('src') || doc.getAttribute('data-url') || 'document';
			return result;
		}

		const images = post.querySelectorAll([
			'.feed-shared-update-v2__content img.update-components-image__image',
			'.feed-shared-article__featured-image img',
			'.feed-shared-article__scroll-container img',
		].join(', '));
		const seen = new Set();
		images.forEach((img) => {
			const src = img.dataset.delayedUrl || img.dataset.src || img.src;
			if (!src || src.startsWith('data:')) return;
			const big = (img.naturalWidth > 50 && img.naturalHeight > 50) || (img.width > 50 && img.height > 50);
			if (!big) return;
			try {
				seen.add(new URL(src, window.location.href).href);
			} catch (e) {}
		});
		result.imageUrls = Array.from(seen);
	} catch (e) {
		result.error = 'Content scraping error: ' + e.message;
	}
	return result;
}`

const reactScript = `async (postId, reaction) => {
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	const post = document.querySelector('[data-urn="' + postId + '"], [data-entity-urn="' + postId + '"]');
	if (!post) return { success: false, error: 'post not found' };

	const trigger = post.querySelector('button.react-button__trigger, button[aria-label*="React"], button[aria-label*="Like"]');
	if (!trigger) return { success: false, error: 'reaction button not found' };

	if (reaction === 'Like') {
		trigger.click();
		await sleep(500);
		return { success: true };
	}

	trigger.dispatchEvent(new MouseEvent('mouseenter', { bubbles: true }));
	trigger.dispatchEvent(new MouseEvent('mouseover', { bubbles: true }));
	let menu = null;
	for (let i = 0; i < 10 && !menu; i++) {
		await sleep(300);
		menu = document.querySelector('.reactions-menu, .reactions-menu--active, [class*="reactions-menu"]');
	}
	if (!menu) return { success: false, error: 'reaction menu did not open' };

	const wanted = reaction.toLowerCase();
	const button = Array.from(menu.querySelectorAll('button')).find((b) =>
		(b.getAttribute('aria-label') || '').toLowerCase().includes(wanted));
	if (!button) return { success: false, error: 'reaction ' + reaction + ' not offered' };

	button.click();
	await sleep(500);
	return { success: true };
}`

const commentScript = `async (postId, text) => {
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	const post = document.querySelector('[data-urn="' + postId + '"], [data-entity-urn="' + postId + '"]');
	if (!post) return { success: false, error: 'Could not find post element with ID ' + postId + '.' };

	const open = post.querySelector('button[aria-label*="comment" i]');
	if (!open) return { success: false, error: 'Could not find comment button.' };
	open.click();
	await sleep(2500 + Math.floor(Math.random() * 1500));

	const boxes = [
		'.comments-comment-box__editor .ql-editor[contenteditable="true"]',
		'.comments-comment-box__editor div[role="textbox"]',
		'.comments-comment-texteditor__content div[role="textbox"]',
		'div[data-placeholder="Add a comment…"]',
	];
	let box = null;
	for (const s of boxes) {
		box = post.querySelector(s);
		if (box) break;
	}
	if (!box) return { success: false, error: 'Could not find comment input box.' };

	box.focus();
	box.innerHTML = '';
	const p = document.createElement('p');
	p.textContent = text;
	box.appendChild(p);
	box.dispatchEvent(new InputEvent('input', { bubbles: true }));
	await sleep(1000);

	const container = post.querySelector('.comments-comment-box, .comments-comment-texteditor') || post;
	const submit = container.querySelector('button.comments-comment-box__submit-button--cr, button.comments-comment-box__submit-button')
		|| Array.from(container.querySelectorAll('button.artdeco-button--primary:not([disabled])'))
			.find((b) => /post|comment/i.test(b.textContent || ''));
	if (!submit) return { success: false, error: 'Could not find post button.' };
	if (submit.disabled) return { success: false, error: 'Post button is disabled.' };

	submit.click();
	await sleep(2000);
	return { success: true };
}`
